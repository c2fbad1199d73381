package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"navgurukul.org/assistant/internal/app"
	"navgurukul.org/assistant/internal/config"
	"navgurukul.org/assistant/internal/logger"
)

func main() {
	config.LoadConfig()

	port := flag.String("port", config.AppConfig.HTTPPort, "HTTP port to listen on")
	mock := flag.Bool("mock", config.AppConfig.UseMockLLM, "Use the canned completion backend instead of Gemini")
	flag.Parse()

	cfg := config.AppConfig
	cfg.HTTPPort = *port
	cfg.UseMockLLM = *mock

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Serve(ctx, fmt.Sprintf(":%s", cfg.HTTPPort))
}
