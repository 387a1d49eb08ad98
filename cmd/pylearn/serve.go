package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pylearn/internal/feedback"
	"github.com/michaelbrown/pylearn/internal/limiter"
	"github.com/michaelbrown/pylearn/internal/notes"
	"github.com/michaelbrown/pylearn/internal/runner"
	"github.com/michaelbrown/pylearn/internal/server"
	"github.com/michaelbrown/pylearn/internal/storage/sqlite"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pylearn web server",
	Long: `Start the pylearn HTTP server. API endpoints are under /api,
Prometheus metrics under /metrics.

Examples:
  pylearn serve
  pylearn serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	resolver, err := newResolver(cfg, logger)
	if err != nil {
		return err
	}

	// Open storage
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	client := newLLMClient(cfg)
	if client == nil {
		logger.Warn().Msg("no LLM API key configured; grading requests will return ERROR feedback")
	}

	// Runner pool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := runner.NewPool(newRunner(cfg, logger), cfg.Runner.Workers, cfg.Runner.QueueSize, logger)
	pool.Start(ctx)
	defer pool.Stop()

	rl := limiter.NewRateLimiter(cfg.Limits.GlobalRPS, cfg.Limits.ClientRPS, cfg.Limits.ClientBurst)
	if err := rl.TrustProxies(cfg.Limits.TrustedProxies); err != nil {
		return fmt.Errorf("limits.trusted_proxies: %w", err)
	}
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	rl.StartCleanup(5*time.Minute, stopCleanup)

	// Determine port
	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(cfg, server.Deps{
		Resolver: resolver,
		Notes:    notes.NewStore(cfg.Content.Notebooks),
		Pool:     pool,
		Feedback: feedback.NewService(client, store, store, feedback.Options{
			Temperature: cfg.LLM.Temperature,
			Logger:      logger,
		}),
		Tokens:  store,
		Limiter: rl,
		Logger:  logger,
	})

	logger.Info().
		Str("backend", cfg.Runner.Backend).
		Int("workers", cfg.Runner.Workers).
		Int("queue", cfg.Runner.QueueSize).
		Str("content", cfg.Content.Root).
		Msg("runner ready")

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
