// Command updownd is the entry point for the updown market daemon. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the daemon in the configured mode.
//
// The encrypt-secret subcommand produces the encrypted secret files that the
// admin_key_path and webhook_secret_path config fields point at.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/updownhq/updown/internal/app"
	"github.com/updownhq/updown/internal/config"
	"github.com/updownhq/updown/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-secret" {
		if err := encryptSecret(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-secret: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
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

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("updown daemon starting",
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
			logger.Info("daemon shut down gracefully")
		} else {
			logger.Error("daemon exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("updown daemon stopped")
}

// encryptSecret reads a secret from stdin, encrypts it with a password, and
// writes the blob to the given path. The secret comes from stdin so it never
// lands in shell history or the process list.
func encryptSecret(args []string) error {
	fs := flag.NewFlagSet("encrypt-secret", flag.ExitOnError)
	out := fs.String("out", "", "path to write the encrypted secret file")
	password := fs.String("password", os.Getenv("UPDOWN_SECRET_PASSWORD"), "encryption password (defaults to $UPDOWN_SECRET_PASSWORD)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: updownd encrypt-secret -out FILE [-password PASSWORD]")
		fmt.Fprintln(fs.Output(), "reads the secret from stdin and writes an encrypted file for the *_path config fields")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" {
		fs.Usage()
		return fmt.Errorf("-out is required")
	}
	if *password == "" {
		return fmt.Errorf("no password: pass -password or set UPDOWN_SECRET_PASSWORD")
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading secret from stdin: %w", err)
	}
	secret := strings.TrimRight(string(raw), "\r\n")
	if secret == "" {
		return fmt.Errorf("empty secret on stdin")
	}

	blob, err := crypto.EncryptSecret(secret, *password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}

	fmt.Printf("encrypted secret written to %s\n", *out)
	return nil
}
