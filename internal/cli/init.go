// Package cli holds the start-up steps shared by cmd/budget and
// cmd/history-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dailybudget/internal/backend"
	"dailybudget/internal/config"
	"dailybudget/internal/log"
	"dailybudget/internal/state"
)

// SetupLogger builds the text logger at the configured level and installs
// it as the slog default. An unknown level falls back to info.
func SetupLogger(level, component string) *slog.Logger {
	lvl, err := config.ParseLogLevel(level)
	cfg := log.DefaultConfig()
	cfg.Level = lvl
	cfg.Output = os.Stderr
	if component != "" {
		cfg.Component = component
	}
	l := log.New(cfg)
	log.SetDefault(l)
	if err != nil {
		l.Warn("Unknown log level, using info", "level", level)
	}
	return l.Logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits the process when it is invalid.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore creates the configured state store or exits the process.
func OpenStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (state.Store, backend.CleanupFunc) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.With(log.FieldComponent, log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bcfg.Type.String())
		os.Exit(1)
	}
	return res.Store, res.Cleanup
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
