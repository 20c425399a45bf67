// Merch Storefront - catalog, cart and order intake for a small merch store.
// Designed for Cloud Run deployment; carts live in memory per instance.
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

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"merch-storefront/internal/cart"
	"merch-storefront/internal/catalog"
	"merch-storefront/internal/config"
	"merch-storefront/internal/handler"
	"merch-storefront/internal/identity"
	"merch-storefront/internal/intake"
	"merch-storefront/internal/middleware"
	"merch-storefront/internal/order"
	"merch-storefront/internal/session"
	"merch-storefront/internal/transport"
)

const (
	// Order submissions across all sessions: 5/s sustained, bursts of 10.
	submitInterval = 200 * time.Millisecond
	submitBurst    = 10

	sweepInterval   = 5 * time.Minute
	initDataMaxAge  = 24 * time.Hour
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("intake_type", cfg.Intake.Type),
		slog.String("environment", cfg.Environment),
		slog.String("catalog_url", cfg.CatalogURL),
		slog.Bool("chrome_tls", cfg.ChromeTLS),
	)

	client := transport.NewClient(transport.Options{
		Timeout:           order.DefaultTimeout,
		ChromeFingerprint: cfg.ChromeTLS,
	})

	products := catalog.NewCache(catalog.NewFetcher(cfg.CatalogURL, client), cfg.CatalogCacheTTL, logger)

	in, drain, err := createIntake(cfg, client, logger)
	if err != nil {
		return fmt.Errorf("creating intake: %w", err)
	}

	required, err := order.ParseFields(cfg.Checkout.RequiredFields)
	if err != nil {
		return fmt.Errorf("parsing required fields: %w", err)
	}
	orderCfg := order.Config{
		Required:       required,
		Currency:       cfg.Checkout.Currency,
		SuccessMessage: cfg.Checkout.SuccessMessage,
	}

	sessions, err := session.NewRegistry(session.Options{
		Limit:       cfg.SessionLimit,
		IdleTimeout: cfg.SessionIdleTimeout,
		NewSubmitter: func(c *cart.Store, id identity.Provider) *order.Submitter {
			return order.NewSubmitter(c, id, in, orderCfg, logger)
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating session registry: %w", err)
	}

	h := handler.New(handler.Options{
		Catalog:          products,
		Sessions:         sessions,
		SubmitRate:       rate.Every(submitInterval),
		SubmitBurst:      submitBurst,
		TelegramBotToken: cfg.TelegramBotToken,
		InitDataMaxAge:   initDataMaxAge,
	}, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request ID → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sessions.Run(gctx, sweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	drain()
	if err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// createIntake creates the order intake named by configuration. The returned
// drain func blocks until background deliveries finish.
func createIntake(cfg *config.Config, client *http.Client, logger *slog.Logger) (order.Intake, func(), error) {
	noop := func() {}

	switch cfg.Intake.Type {
	case config.IntakeWebhook:
		w, err := intake.NewWebhook(intake.WebhookConfig{
			URL:    cfg.Intake.URL,
			Token:  cfg.Intake.Token,
			Secret: cfg.Intake.Secret,
			Client: client,
		})
		return w, noop, err
	case config.IntakeGitHub:
		g, err := intake.NewGitHubDispatch(intake.GitHubConfig{
			Owner:     cfg.Intake.Owner,
			Repo:      cfg.Intake.Repo,
			Token:     cfg.Intake.Token,
			EventType: cfg.Intake.EventType,
			BaseURL:   cfg.Intake.APIURL,
			Client:    client,
		})
		return g, noop, err
	case config.IntakeBeacon:
		b, err := intake.NewBeacon(cfg.Intake.URL, client, order.DefaultTimeout, logger)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Wait, nil
	case config.IntakeMock:
		logger.Warn("using mock intake; orders are not delivered anywhere")
		return &intake.Mock{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported intake type: %s", cfg.Intake.Type)
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
