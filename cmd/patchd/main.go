package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/config"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/replaypatch/internal/infrastructure/server"
)

func main() {
	configPath := flag.String("config", "", "Config file (.yaml, .toml or .json)")
	port := flag.String("port", "", "Server port (overrides PORT)")
	archiveOrigin := flag.String("archive-origin", "", "Default archive origin")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *archiveOrigin != "" {
		cfg.Replay.ArchiveOrigin = *archiveOrigin
	}
	if *dev {
		cfg.Logging.Development = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.Build("patchd", cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("Config warning", zap.String("warning", w))
	}

	srv, err := server.NewServer(cfg, logger.Logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Server error", zap.Error(runErr))
	} else {
		logger.Info("Shutting down gracefully...")
	}
	if err := srv.Close(); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if runErr != nil {
		os.Exit(1)
	}
}
