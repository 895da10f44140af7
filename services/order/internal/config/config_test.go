package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8082, cfg.HTTPPort)
	assert.Equal(t, "order_db", cfg.PostgresDB)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "http://localhost:8081", cfg.InventoryServiceURL)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ORDER_HTTP_PORT", "9999")
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "5")
	t.Setenv("PAYMENT_SERVICE_URL", "http://payments.internal:8080")
	t.Setenv("KAFKA_BROKERS", "kafka1:9092,kafka2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.PaymentTimeout())
	assert.Equal(t, "http://payments.internal:8080", cfg.PaymentServiceURL)
	assert.Equal(t, []string{"kafka1:9092", "kafka2:9092"}, cfg.KafkaBrokers)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "0")
	_, err := Load()
	assert.Error(t, err)
}
