package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/FulfillmentGo/pkg/config"
)

// Config holds all configuration for the inventory service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"INVENTORY_HTTP_PORT" envDefault:"8081"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"fulfillment"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"fulfillment_secret"`
	PostgresDB   string `env:"INVENTORY_DB_NAME" envDefault:"inventory_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Reservation hold TTL in seconds (default 15 minutes)
	ReservationTTLSeconds int `env:"RESERVATION_TTL_SECONDS" envDefault:"900"`

	// Expiry sweeper
	SweepIntervalSeconds int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`
	SweepBatchSize       int `env:"SWEEP_BATCH_SIZE" envDefault:"100"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load inventory config: %w", err)
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
	if c.ReservationTTLSeconds <= 0 {
		return fmt.Errorf("RESERVATION_TTL_SECONDS must be > 0, got %d", c.ReservationTTLSeconds)
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be > 0, got %d", c.SweepIntervalSeconds)
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be > 0, got %d", c.SweepBatchSize)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// ReservationTTL returns the hold TTL as a duration.
func (c *Config) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLSeconds) * time.Second
}

// SweepInterval returns the sweeper tick interval as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
