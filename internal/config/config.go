package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"production"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`

	StoreDriver            string `envconfig:"STORE_DRIVER" default:"postgres"`
	DBConnectionString     string `envconfig:"DB_CONNECTION_STRING"`
	StoreRetryMaxElapsedMs int    `envconfig:"STORE_RETRY_MAX_ELAPSED_MS" default:"2000"`
	JWTVerificationKey     string `envconfig:"JWT_VERIFICATION_KEY" required:"true"`
	SiteURL                string `envconfig:"SITE_URL" default:"http://localhost:3000"`
	UpgradePath            string `envconfig:"UPGRADE_PATH" default:"/pricing"`
	IdentityWebhookSecret  string `envconfig:"IDENTITY_WEBHOOK_SECRET"`

	// Stripe settings
	StripeSecretKey              string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret          string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeStandardMonthlyPriceID string `envconfig:"STRIPE_STANDARD_MONTHLY_PRICE_ID"`
	StripeStandardYearlyPriceID  string `envconfig:"STRIPE_STANDARD_YEARLY_PRICE_ID"`
	StripeProMonthlyPriceID      string `envconfig:"STRIPE_PRO_MONTHLY_PRICE_ID"`
	StripeProYearlyPriceID       string `envconfig:"STRIPE_PRO_YEARLY_PRICE_ID"`

	// Image generation settings
	OpenRouterAPIKey     string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL    string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	ImageModelDefault    string `envconfig:"IMAGE_MODEL_DEFAULT" default:"google/gemini-3-pro-image-preview"`
	GenerationTimeoutSec int    `envconfig:"GENERATION_TIMEOUT_SEC" default:"120"`

	// Object storage settings. An empty bucket keeps provider URLs as-is.
	S3URL              string `envconfig:"S3_URL"`
	S3Bucket           string `envconfig:"S3_BUCKET"`
	S3Region           string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey        string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey        string `envconfig:"S3_SECRET_KEY"`
	S3PresignExpirySec int    `envconfig:"S3_PRESIGN_EXPIRY_SEC" default:"900"`

	// GCP settings
	GCPProjectID             string `envconfig:"GCP_PROJECT_ID"`
	PubSubAccountEventsTopic string `envconfig:"PUBSUB_ACCOUNT_EVENTS_TOPIC"`
	GCPSecretsProjectID      string `envconfig:"GCP_SECRETS_PROJECT_ID"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTVerificationKey) == "" {
		return fmt.Errorf("JWT_VERIFICATION_KEY is required")
	}
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DBConnectionString == "" {
			return fmt.Errorf("DB_CONNECTION_STRING is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.S3Bucket != "" && c.S3URL == "" {
		return fmt.Errorf("S3_URL is required when S3_BUCKET is set")
	}
	return nil
}

// UpgradeURL is where clients are sent after hitting a quota.
func (c *Config) UpgradeURL() string {
	return strings.TrimRight(c.SiteURL, "/") + c.UpgradePath
}

func (c *Config) StoreRetryMaxElapsed() time.Duration {
	return time.Duration(c.StoreRetryMaxElapsedMs) * time.Millisecond
}

func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSec) * time.Second
}

func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.S3PresignExpirySec) * time.Second
}
