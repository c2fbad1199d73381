package core

import (
	"context"
	"sync"

	"navgurukul.org/assistant/internal/logger"
)

// SessionRegistry keeps one started ChatSession per session marker, so each sign-in
// has its own transcript.
type SessionRegistry struct {
	backend   Backend
	extractor Extractor
	opts      SessionOptions
	log       *logger.Logger

	mu       sync.Mutex
	sessions map[string]*ChatSession
}

func NewSessionRegistry(backend Backend, extractor Extractor, opts SessionOptions, log *logger.Logger) *SessionRegistry {
	return &SessionRegistry{
		backend:   backend,
		extractor: extractor,
		opts:      opts,
		log:       log,
		sessions:  make(map[string]*ChatSession),
	}
}

// Get returns the session for key, creating and starting it on first use.
func (r *SessionRegistry) Get(ctx context.Context, key string) (*ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	s := NewChatSession(r.backend, r.extractor, r.opts, r.log)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	r.sessions[key] = s
	return s, nil
}

// Drop abandons and forgets the session for key.
func (r *SessionRegistry) Drop(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
