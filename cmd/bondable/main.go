// Command bondable is the bond ledger service entry point. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/bondable/internal/app"
	"github.com/alanyoungcy/bondable/internal/config"
	"github.com/alanyoungcy/bondable/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	writeKeyfile := flag.String("write-keyfile", "", "encrypt the configured wallet key to this path and exit")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Keyfile utility mode: encrypt the raw wallet key from config/env into
	// an encrypted keyfile, so the raw key can then be dropped from both.
	if *writeKeyfile != "" {
		data, err := crypto.EncryptKeyfile(cfg.Wallet.PrivateKey, cfg.Wallet.KeyPassword)
		if err != nil {
			logger.Error("failed to encrypt keyfile", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := os.WriteFile(*writeKeyfile, data, 0o600); err != nil {
			logger.Error("failed to write keyfile",
				slog.String("path", *writeKeyfile),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Info("keyfile written", slog.String("path", *writeKeyfile))
		return
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("bond ledger starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("bond ledger stopped")
}
