package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nathantilsley/chart-ident/internal/platform/config"
	"github.com/nathantilsley/chart-ident/internal/platform/logger"
	"github.com/nathantilsley/chart-ident/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	info := version.GetInfo()
	log.Info("chart-ident starting", "version", info.Version, "commit", info.GitCommit, "go", info.GoVersion)

	// Cancelled on SIGINT/SIGTERM; Run then shuts down gracefully
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := NewContainer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building container: %w", err)
	}

	return NewServer(container).Run(ctx)
}
