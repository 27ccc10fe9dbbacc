// Package config defines the global configuration structure for the subledger
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the process to exit
// immediately on startup (fail fast). The one deliberate exception is the
// Stripe webhook signing secret, which may be absent for local development;
// the service then runs in a degraded mode that skips signature verification
// and logs a prominent warning.
package config

import (
	"time"

	"subledger/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the subledger service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"subledger"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Stripe   StripeConfig
	Metrics  MetricsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds regional configuration for SSM secret resolution and
// CloudWatch metrics.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// StripeConfig holds the payment-provider credentials.
//
// WebhookSecret is intentionally not marked required: when empty the service
// accepts unverified payloads for local/dev use and logs a prominent warning
// at startup. SecretKey is only needed for the charge-before-intent backfill
// path; when empty the backfill is skipped and stub payment records are
// created without enrichment.
type StripeConfig struct {
	WebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET"`
	SecretKey     SecretString  `envconfig:"STRIPE_SECRET_KEY"`
	APITimeout    time.Duration `envconfig:"STRIPE_API_TIMEOUT" default:"20s"`
}

// MetricsConfig holds CloudWatch metric emission settings.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"Subledger"`
}

// BuildInfo carries compile-time version metadata.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}
