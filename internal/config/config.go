package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	CartBackendPostgres = "postgres"
	CartBackendMongo    = "mongo"
	CartBackendMemory   = "memory"
)

type Config struct {
	Env                string
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBMaxConns     int32
	MigrationsPath string

	CatalogPath           string
	CatalogMigrationsPath string

	// CartBackend picks where cart lines live. "memory" keeps every store
	// in process and needs no database.
	CartBackend string
	MongoURI    string
	MongoDBName string

	// RedisAddr empty disables the cart cache
	RedisAddr     string
	RedisPassword string
	CartCacheTTL  time.Duration

	// KafkaBrokers empty logs outbox events instead of publishing them
	KafkaBrokers      []string
	KafkaTopic        string
	OutboxPollTick    time.Duration
	PendingPaymentTTL time.Duration

	SettlementTimeout     time.Duration
	SettlementLatency     time.Duration
	SettlementApprovalPct int
	BreakerFailures       uint32
	BreakerOpenTimeout    time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                   getEnv("APP_ENV", "production"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBUser:                getEnv("DB_USER", "postgres"),
		DBPassword:            getEnv("DB_PASSWORD", "postgres"),
		DBName:                getEnv("DB_NAME", "farm2consumer"),
		MigrationsPath:        getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		CatalogPath:           getEnv("CATALOG_DB_PATH", "./catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),
		CartBackend:           strings.ToLower(getEnv("CART_BACKEND", CartBackendPostgres)),
		MongoURI:              getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:           getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "orders.placed"),
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.DBPort, err = getInt("DB_PORT", 5432); err != nil {
		return nil, err
	}
	maxConns, err := getBoundedInt("DB_MAX_CONNS", 10, 1, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConns = int32(maxConns)
	if cfg.SettlementApprovalPct, err = getInt("SETTLEMENT_APPROVAL_PERCENT", 100); err != nil {
		return nil, err
	}
	failures, err := getBoundedInt("BREAKER_CONSECUTIVE_FAILURES", 5, 1, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	cfg.BreakerFailures = uint32(failures)
	bodySize, err := getBoundedInt("MAX_REQUEST_BODY_BYTES", 1<<20, 1, math.MaxInt)
	if err != nil {
		return nil, err
	}
	cfg.MaxRequestBodySize = int64(bodySize)

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"REQUEST_TIMEOUT", 30 * time.Second, &cfg.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
		{"CART_CACHE_TTL", 15 * time.Minute, &cfg.CartCacheTTL},
		{"OUTBOX_POLL_INTERVAL", time.Second, &cfg.OutboxPollTick},
		{"PENDING_PAYMENT_TTL", 5 * time.Minute, &cfg.PendingPaymentTTL},
		{"SETTLEMENT_TIMEOUT", 5 * time.Second, &cfg.SettlementTimeout},
		{"SETTLEMENT_LATENCY", 0, &cfg.SettlementLatency},
		{"BREAKER_OPEN_TIMEOUT", 30 * time.Second, &cfg.BreakerOpenTimeout},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CartBackend {
	case CartBackendPostgres, CartBackendMongo, CartBackendMemory:
	default:
		return fmt.Errorf("invalid CART_BACKEND %q: want postgres, mongo or memory", c.CartBackend)
	}
	if c.SettlementApprovalPct < 0 || c.SettlementApprovalPct > 100 {
		return fmt.Errorf("invalid SETTLEMENT_APPROVAL_PERCENT %d: want 0..100", c.SettlementApprovalPct)
	}
	if c.PendingPaymentTTL <= c.SettlementTimeout {
		return fmt.Errorf("PENDING_PAYMENT_TTL (%s) must exceed SETTLEMENT_TIMEOUT (%s)", c.PendingPaymentTTL, c.SettlementTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getBoundedInt is getInt for values that are narrowed or must be positive.
func getBoundedInt(key string, defaultValue, lo, hi int) (int, error) {
	n, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %d: want %d..%d", key, n, lo, hi)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
