package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	awspkg "github.com/aarthurxk/calibrasil-sub001/pkg/aws"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	StoreBackend     string // postgres | memory
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisAddr          string
	RedisPassword      string
	RateLimitBackend   string // redis | memory
	RateLimitPerMinute int
	RateLimitBurst     int

	StripeSecretKey    string
	StripeWebhookKey   string
	PagSeguroEmail     string
	PagSeguroToken     string
	PagSeguroLegacyURL string
	PagSeguroAPIURL    string

	GatewayTimeout        time.Duration
	GatewayMaxConcurrency int

	ConfirmationSecret  string
	ConfirmationTTL     time.Duration
	ConfirmationBaseURL string
	JWTSecret           string

	NotificationTopicARN string
	RestockQueueURL      string
	WebhookArchiveBucket string
	ShippingServiceURL   string
	LowStockThreshold    int

	AllowedOrigins    string
	CloudWatchEnabled bool
	MetricsNamespace  string
}

// LoadConfig reads configuration from the environment (and .env when present)
// with an optional Secrets Manager overlay.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8092"),
		Env:                   getEnv("ENV", "development"),
		StoreBackend:          getEnv("STORE_BACKEND", "postgres"),
		PostgresUser:          os.Getenv("POSTGRES_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:            os.Getenv("POSTGRES_DB"),
		PostgresHost:          os.Getenv("POSTGRES_HOST"),
		PostgresPort:          getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:       getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:      getEnv("POSTGRES_TIMEZONE", "America/Sao_Paulo"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RateLimitBackend:      getEnv("RATE_LIMIT_BACKEND", "redis"),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
		RateLimitBurst:        getEnvInt("RATE_LIMIT_BURST", 10),
		StripeSecretKey:       os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PagSeguroEmail:        os.Getenv("PAGSEGURO_EMAIL"),
		PagSeguroToken:        os.Getenv("PAGSEGURO_TOKEN"),
		PagSeguroLegacyURL:    getEnv("PAGSEGURO_LEGACY_URL", "https://ws.pagseguro.uol.com.br"),
		PagSeguroAPIURL:       getEnv("PAGSEGURO_API_URL", "https://api.pagseguro.com"),
		GatewayTimeout:        getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		GatewayMaxConcurrency: getEnvInt("GATEWAY_MAX_CONCURRENCY", 8),
		ConfirmationSecret:    os.Getenv("CONFIRMATION_SECRET"),
		ConfirmationTTL:       getEnvDuration("CONFIRMATION_TTL", 720*time.Hour),
		ConfirmationBaseURL:   getEnv("CONFIRMATION_BASE_URL", "http://localhost:3000/confirmar-recebimento"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		NotificationTopicARN:  os.Getenv("NOTIFICATION_SNS_TOPIC_ARN"),
		RestockQueueURL:       os.Getenv("RESTOCK_QUEUE_URL"),
		WebhookArchiveBucket:  os.Getenv("WEBHOOK_ARCHIVE_BUCKET"),
		ShippingServiceURL:    os.Getenv("SHIPPING_SERVICE_URL"),
		LowStockThreshold:     getEnvInt("LOW_STOCK_THRESHOLD", 5),
		AllowedOrigins:        getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		CloudWatchEnabled:     os.Getenv("CLOUDWATCH_ENABLED") == "true",
		MetricsNamespace:      getEnv("METRICS_NAMESPACE", "Calibrasil"),
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if err := cfg.overlaySecrets(context.Background()); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlaySecrets replaces credentials with values stored in AWS Secrets Manager.
func (c *Config) overlaySecrets(ctx context.Context) error {
	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	sm := awspkg.NewSecretsClient(awsCfg)

	if m, err := sm.GetSecretMap(ctx, "reconciliation/DB_CREDENTIALS"); err == nil {
		overlay(m, "POSTGRES_USER", &c.PostgresUser)
		overlay(m, "POSTGRES_PASSWORD", &c.PostgresPassword)
		overlay(m, "POSTGRES_DB", &c.PostgresDB)
		overlay(m, "POSTGRES_HOST", &c.PostgresHost)
		overlay(m, "POSTGRES_PORT", &c.PostgresPort)
	}
	if m, err := sm.GetSecretMap(ctx, "reconciliation/GATEWAY_KEYS"); err == nil {
		overlay(m, "STRIPE_API_KEY", &c.StripeSecretKey)
		overlay(m, "STRIPE_WEBHOOK_SECRET", &c.StripeWebhookKey)
		overlay(m, "PAGSEGURO_EMAIL", &c.PagSeguroEmail)
		overlay(m, "PAGSEGURO_TOKEN", &c.PagSeguroToken)
		overlay(m, "JWT_SECRET", &c.JWTSecret)
	}
	if v, err := sm.GetSecret(ctx, "reconciliation/CONFIRMATION_SECRET"); err == nil && v != "" {
		c.ConfirmationSecret = strings.TrimSpace(v)
	}
	return nil
}

func (c *Config) validate() error {
	var missing []string
	if c.StoreBackend == "postgres" {
		if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
			missing = append(missing, "POSTGRES_*")
		}
	}
	if c.StripeSecretKey == "" || c.StripeWebhookKey == "" {
		missing = append(missing, "STRIPE_API_KEY/STRIPE_WEBHOOK_SECRET")
	}
	if len(c.ConfirmationSecret) < 16 {
		missing = append(missing, "CONFIRMATION_SECRET (min 16 chars)")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.GatewayMaxConcurrency <= 0 {
		return fmt.Errorf("GATEWAY_MAX_CONCURRENCY must be positive")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort,
		c.PostgresSSLMode, c.PostgresTimeZone)
}

func overlay(m map[string]string, key string, dst *string) {
	if v, ok := m[key]; ok && v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
