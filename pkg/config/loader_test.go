package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port          int           `env:"TEST_HTTP_PORT" envDefault:"8080"`
	LogLevel      string        `env:"TEST_LOG_LEVEL" envDefault:"info"`
	SweepInterval time.Duration `env:"TEST_SWEEP_INTERVAL" envDefault:"30s"`
	Brokers       []string      `env:"TEST_KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
}

func TestLoadDefaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TEST_HTTP_PORT", "9000")
	t.Setenv("TEST_SWEEP_INTERVAL", "5s")
	t.Setenv("TEST_KAFKA_BROKERS", "k1:9092,k2:9092")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("TEST_HTTP_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
