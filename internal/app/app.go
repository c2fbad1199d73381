package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"navgurukul.org/assistant/internal/api"
	"navgurukul.org/assistant/internal/attachment"
	"navgurukul.org/assistant/internal/auth"
	"navgurukul.org/assistant/internal/config"
	"navgurukul.org/assistant/internal/core"
	"navgurukul.org/assistant/internal/dictation"
	"navgurukul.org/assistant/internal/logger"
	"navgurukul.org/assistant/internal/store"
)

// App holds the long-lived services shared by the server and the CLI.
type App struct {
	Config      config.Config
	Store       *store.SQLiteStore
	Credentials *auth.CredentialStore
	Backend     core.Backend
	Extractor   *attachment.Extractor
	Sessions    *core.SessionRegistry
	Dictation   *dictation.GoogleSource // nil when the speech client could not be created

	log     *logger.Logger
	closers []func()
}

type Option func(*options)

type options struct {
	backend       core.Backend
	skipDictation bool
}

// WithBackend replaces the configured completion backend.
func WithBackend(b core.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithoutDictation skips creating the speech client.
func WithoutDictation() Option {
	return func(o *options) { o.skipDictation = true }
}

func New(ctx context.Context, cfg config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, log: log}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.Store = dbStore
	a.closers = append(a.closers, func() {
		if err := dbStore.Close(); err != nil {
			log.Warn("Error closing database", "error", err)
		}
	})

	a.Credentials = auth.NewCredentialStore(dbStore, log)

	switch {
	case o.backend != nil:
		a.Backend = o.backend
	case cfg.UseMockLLM:
		log.Info("Using mock completion backend")
		a.Backend = core.NewMockBackend()
	default:
		gemini, err := core.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Backend = gemini
		a.closers = append(a.closers, gemini.Close)
	}

	a.Extractor = attachment.NewExtractor(cfg.MaxUploadBytes)
	a.Sessions = core.NewSessionRegistry(a.Backend, a.Extractor, SessionOptions(cfg.Profile), log)

	if !o.skipDictation {
		src, err := dictation.NewGoogleSource(ctx, cfg.SpeechLanguage, log)
		if err != nil {
			log.Warn("Dictation disabled", "error", err)
		} else {
			a.Dictation = src
			a.closers = append(a.closers, func() {
				if err := src.Close(); err != nil {
					log.Warn("Error closing speech client", "error", err)
				}
			})
		}
	}

	return a, nil
}

// SessionOptions maps the assistant profile onto chat session settings.
func SessionOptions(p config.Profile) core.SessionOptions {
	return core.SessionOptions{
		SystemInstruction: p.SystemInstruction,
		Greeting:          p.Greeting,
		ClearedGreeting:   p.ClearedGreeting,
		Capabilities:      core.Capabilities{SearchGrounding: p.GroundingEnabled()},
	}
}

// NewChatSession creates an unstarted session outside the registry, for the CLI.
func (a *App) NewChatSession() *core.ChatSession {
	return core.NewChatSession(a.Backend, a.Extractor, SessionOptions(a.Config.Profile), a.log)
}

func (a *App) Handler() http.Handler {
	var dict dictation.Source
	if a.Dictation != nil {
		dict = a.Dictation
	}
	h := api.NewAPIHandler(a.Credentials, a.Sessions, dict, a.Config.Profile, a.Config.MaxUploadBytes, a.log)
	return api.NewRouter(h)
}

func (a *App) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // streamed answers can take a while
		IdleTimeout:  120 * time.Second,
	}
}

// Serve runs the HTTP server until ctx is done, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := a.NewServer(addr)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Starting server. Press Ctrl+C to quit.", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", addr, err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("Server exiting gracefully")
	return nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
