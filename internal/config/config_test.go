package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, CartBackendPostgres, cfg.CartBackend)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "orders.placed", cfg.KafkaTopic)
	assert.Equal(t, 5*time.Second, cfg.SettlementTimeout)
	assert.Equal(t, 100, cfg.SettlementApprovalPct)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBodySize)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("CART_BACKEND", "Mongo")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SETTLEMENT_TIMEOUT", "750ms")
	t.Setenv("PENDING_PAYMENT_TTL", "2m")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 6543, cfg.DBPort)
	assert.Equal(t, CartBackendMongo, cfg.CartBackend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.SettlementTimeout)
	assert.Equal(t, 2*time.Minute, cfg.PendingPaymentTTL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"port", "DB_PORT", "five"},
		{"duration", "SETTLEMENT_TIMEOUT", "soon"},
		{"backend", "CART_BACKEND", "cassandra"},
		{"approval", "SETTLEMENT_APPROVAL_PERCENT", "140"},
		{"ttl shorter than settlement", "PENDING_PAYMENT_TTL", "1s"},
		{"negative breaker threshold", "BREAKER_CONSECUTIVE_FAILURES", "-1"},
		{"zero breaker threshold", "BREAKER_CONSECUTIVE_FAILURES", "0"},
		{"zero pool size", "DB_MAX_CONNS", "0"},
		{"pool size overflow", "DB_MAX_CONNS", "3000000000"},
		{"negative body limit", "MAX_REQUEST_BODY_BYTES", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}
