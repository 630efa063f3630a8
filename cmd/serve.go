package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/api"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/attachment"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/config"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/gemini"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/log"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/observability"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/orchestrator"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // audio payloads need longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Server address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting HTTP API server", "version", AppVersion)

	if cfg.Datadog.Enabled() {
		shutdownTracing, traceErr := observability.SetupDatadog(ctx, observability.Config{
			AgentHost:   cfg.Datadog.AgentHost,
			Environment: cfg.Datadog.Environment,
			ServiceName: cfg.Datadog.ServiceName,
		})
		if traceErr != nil {
			return fmt.Errorf("setting up tracing: %w", traceErr)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if flushErr := shutdownTracing(flushCtx); flushErr != nil {
				logger.Warn("flushing traces", "error", flushErr)
			}
		}()
	}

	client, err := gemini.New(ctx, gemini.Config{
		APIKey: cfg.APIKey,
		Logger: logger,
		Models: gemini.Models{
			Chat:   cfg.ChatModel,
			Search: cfg.SearchModel,
			Image:  cfg.ImageModel,
			TTS:    cfg.TTSModel,
		},
		ThinkingBudget: cfg.ThinkingBudget,
		Voice:          cfg.Voice,
	})
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	store := conversation.NewStore(logger)
	attachments := attachment.NewStore(logger)

	// Title side-flows detach from requests; wg lets shutdown wait for them.
	var wg sync.WaitGroup
	ctrl, err := orchestrator.New(orchestrator.Config{
		AI:            client,
		Store:         store,
		Attachments:   attachments,
		Logger:        logger,
		BackgroundCtx: ctx,
		WG:            &wg,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Controller:  ctrl,
		Store:       store,
		Attachments: attachments,
		Speech:      client,
		CORSOrigins: cfg.CORSOrigins,
		IsDev:       cfg.Datadog.Environment == "dev",
		TrustProxy:  cfg.TrustProxy,
		RateRPS:     cfg.RateLimitRPS,
		RateBurst:   cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		wg.Wait() // let in-flight title generation finish logging
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
