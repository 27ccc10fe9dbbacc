// Package main is the entry point for the subledger webhook service.
//
// It loads configuration (env, dotenv, SSM), opens the pgx connection pool,
// wires the ingest pipeline with its repositories and the signature
// verifier, and serves the webhook endpoint until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"subledger/internal/api/handlers"
	"subledger/internal/config"
	"subledger/internal/core"
	"subledger/internal/db"
	"subledger/internal/external"
	"subledger/internal/ingest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("subledger webhook service starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	// Signature verification is mandatory outside local development; an
	// unset secret in local mode degrades to accept-all with a loud warning.
	var verifier external.WebhookVerifier
	if cfg.Stripe.WebhookSecret.IsSet() {
		verifier = &external.StripeVerifier{}
	} else {
		if cfg.Environment != "local" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when APP_ENV=%s", cfg.Environment)
		}
		verifier = external.NewInsecureVerifier(logger)
	}

	// The intent fetcher is optional: without an API key the charge handler
	// keeps charge-derived stub records instead of backfilling.
	var intentFetcher external.PaymentIntentFetcher
	if cfg.Stripe.SecretKey.IsSet() {
		intentFetcher = external.NewStripeClient(
			&http.Client{Timeout: cfg.Stripe.APITimeout},
			external.StripeClientConfig{
				SecretKey: cfg.Stripe.SecretKey.Unmask(),
				Logger:    logger,
			},
		)
	}

	var metrics ingest.MetricsRecorder
	if cfg.Metrics.Enabled {
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if awsErr != nil {
			return fmt.Errorf("loading AWS config for metrics: %w", awsErr)
		}
		metrics = core.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger)
	}

	service := ingest.NewService(ingest.ServiceConfig{
		Verifier:      verifier,
		WebhookSecret: cfg.Stripe.WebhookSecret.Unmask(),
		Ledger:        db.NewEventRepo(pool, logger),
		Subscriptions: db.NewSubscriptionStore(pool, logger),
		Creators:      db.NewCreatorRepo(pool, logger),
		Payments:      db.NewPaymentRepo(pool, logger),
		Payouts:       db.NewPayoutRepo(pool, logger),
		Disputes:      db.NewDisputeRepo(pool, logger),
		Accounts:      db.NewAccountRepo(pool, logger),
		Customers:     db.NewCustomerRepo(pool, logger),
		IntentFetcher: intentFetcher,
		Metrics:       metrics,
		Logger:        logger,
	})

	srv, err := core.NewServer(cfg, logger, pool)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.WebhookHandler = handlers.NewWebhookHandler(service, logger)
	srv.MountRoutes()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("subledger webhook service stopped")
	return nil
}

// newLogger creates a structured slog.Logger for the given level. JSON output
// keeps log aggregation consistent across environments.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
