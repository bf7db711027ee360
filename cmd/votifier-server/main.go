package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/votifier-go/internal/infra/buildinfo"
	"github.com/yndnr/votifier-go/internal/infra/shutdown"
	"github.com/yndnr/votifier-go/internal/server/config"
	"github.com/yndnr/votifier-go/internal/telemetry/logger"
)

// shutdownTimeout bounds the whole graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command line flags
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("votifier-server %s\n", buildinfo.String())
		return nil
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger
	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting votifier-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx := context.Background()
	a, err := newApp(ctx, cfg, *configFile, log)
	if err != nil {
		return err
	}

	// Hooks are registered before anything listens so a failed start
	// still releases what was opened.
	shutdownHandler := shutdown.NewHandler(shutdownTimeout)
	a.registerShutdown(shutdownHandler)

	if err := a.start(ctx); err != nil {
		shutdownHandler.Trigger()
		_ = shutdownHandler.Wait()
		return err
	}

	go func() {
		if err := a.serveHTTP(); err != nil {
			log.Error("admin endpoint failed", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if err := a.watch(); err != nil {
		log.Warn("configuration watcher disabled", "error", err)
	}

	// Wait for shutdown signal
	log.Info("server started, press Ctrl+C to stop", "addr", a.votes.Addr().String())
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// initLogger builds the process logger and installs it as the default.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}
