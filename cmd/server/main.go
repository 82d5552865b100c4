// Package main is the entry point for the conductor server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"aither-flow/internal/api"
	"aither-flow/internal/conductor"
	"aither-flow/internal/config"
	"aither-flow/internal/eventbus"
	"aither-flow/internal/platform"
	"aither-flow/internal/projects"
	"aither-flow/internal/workspace"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var envFile, addr, logLevel string

	flagSet := pflag.NewFlagSet("aither-flow", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load environment variables from this file instead of ./.env")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	// Load configuration
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if addr != "" {
		cfg.ServerAddr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := config.CheckClaudeHome(); err != nil {
		logger.Warn("claude CLI is not set up; run it once to log in", "error", err)
	}
	if _, err := workspace.EnsureDefault(cfg.ConfigDir); err != nil {
		logger.Warn("failed to prepare default workspace", "error", err)
	}

	store, err := projects.NewStore(cfg.ProjectsDBPath())
	if err != nil {
		return fmt.Errorf("failed to open projects database: %w", err)
	}
	defer store.Close()

	bus := eventbus.New(cfg.EventBuffer)
	defer bus.Close()

	cond := conductor.New(bus, conductor.Options{
		Binary:       cfg.ClaudeBinary,
		DefaultModel: cfg.Settings.DefaultModel,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Notify {
		sub := bus.Subscribe(conductor.EventTopic)
		go notifyLoop(ctx, sub, platform.N, logger)
	}

	srv := api.NewServer(cfg, cond, bus, store, logger)
	router := api.NewRouter(srv)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // Disable for streaming
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ServerAddr, "claude", cfg.ClaudeBinary)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			cond.Shutdown(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdown(shutdownCtx, httpServer, cond, bus, logger)
	logger.Info("server stopped")
	return nil
}

// shutdown stops the sessions first so open event streams still receive
// processExited, then closes the bus to end those streams, then the listener.
func shutdown(ctx context.Context, httpServer *http.Server, cond *conductor.Conductor, bus *eventbus.Bus, logger *slog.Logger) {
	if err := cond.Shutdown(ctx); err != nil {
		logger.Warn("claude sessions did not exit in time", "error", err)
	}
	bus.Close()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `aither-flow runs Claude CLI sessions and streams their events over HTTP.

Configuration comes from the environment (AITHER_TOKEN is required), an
optional .env file and settings.jsonc in the config directory.

Usage:
  aither-flow [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
