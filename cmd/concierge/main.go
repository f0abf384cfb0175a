package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"concierge/internal/infra/config"
	"concierge/internal/infra/logger"
	"concierge/internal/infra/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		sessionID  = flag.String("session", "", "session ID to resume (default: new session)")
	)
	flag.Parse()

	// Best effort; API keys may come from the real environment instead.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer setup: %w", err)
	}
	defer shutdownTracer(context.Background())

	rt, err := initRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	log.Info("concierge started",
		"agents", len(rt.Orchestrator.ListAgents()),
		"provider", cfg.LLM.Provider,
		"state", cfg.State.Path)

	return runREPL(ctx, rt.Orchestrator, *sessionID)
}
