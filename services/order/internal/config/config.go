package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/FulfillmentGo/pkg/config"
)

// Config holds all configuration for the order service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"ORDER_HTTP_PORT" envDefault:"8082"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"fulfillment"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"fulfillment_secret"`
	PostgresDB   string `env:"ORDER_DB_NAME" envDefault:"order_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Redis, used for consumer idempotency tracking.
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Downstream services
	InventoryServiceURL string `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8081"`
	PaymentServiceURL   string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8083"`
	CartServiceURL      string `env:"CART_SERVICE_URL" envDefault:"http://localhost:8084"`

	// Per-attempt ceiling on payment gateway calls. Kept well below the
	// reservation TTL so a hung gateway fails the saga while the holds are
	// still live.
	PaymentTimeoutSeconds int `env:"PAYMENT_TIMEOUT_SECONDS" envDefault:"10"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.InventoryServiceURL == "" {
		return fmt.Errorf("INVENTORY_SERVICE_URL is required")
	}
	if c.PaymentServiceURL == "" {
		return fmt.Errorf("PAYMENT_SERVICE_URL is required")
	}
	if c.CartServiceURL == "" {
		return fmt.Errorf("CART_SERVICE_URL is required")
	}
	if c.PaymentTimeoutSeconds <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT_SECONDS must be > 0, got %d", c.PaymentTimeoutSeconds)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PaymentTimeout returns the payment gateway call ceiling as a duration.
func (c *Config) PaymentTimeout() time.Duration {
	return time.Duration(c.PaymentTimeoutSeconds) * time.Second
}
