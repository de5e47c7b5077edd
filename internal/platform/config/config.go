package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Addr string

	// AdminAddr is the wallet granted the admin role on the built-in
	// development ledger.
	AdminAddr string

	// MirrorPath is the file backing the mirror when Redis is not
	// configured.
	MirrorPath string

	Redis    RedisConfig
	Cache    CacheConfig
	Ledger   LedgerConfig
	Sync     SyncConfig
	Payment  PaymentConfig
	Postgres PostgresConfig
}

// RedisConfig configures the durable cache mirror backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CacheConfig configures the client-side cache store.
type CacheConfig struct {
	RemoteURL string
	LocalTTL  time.Duration
	Cooldown  time.Duration
}

// LedgerConfig configures ledger access.
type LedgerConfig struct {
	ReadTimeout time.Duration
	MaxRetries  int
	Backoff     time.Duration
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	ChunkSize  int
	ChunkPause time.Duration
}

// PaymentConfig configures the payment coordinator.
type PaymentConfig struct {
	AnimalBasePriceCents int64
	GatewayLatency       time.Duration
}

// PostgresConfig configures the payment record store. Empty URL means the
// in-memory store is used.
type PostgresConfig struct {
	URL string
}

// FromEnv builds a Config from environment variables with development defaults.
func FromEnv() Config {
	return Config{
		Addr:       envStr("BEEFTRACE_ADDR", ":8080"),
		AdminAddr:  envStr("BEEFTRACE_ADMIN_ADDR", "addr_admin"),
		MirrorPath: envStr("BEEFTRACE_MIRROR_PATH", "beeftrace-mirror.json"),
		Redis: RedisConfig{
			URL:          os.Getenv("BEEFTRACE_REDIS_URL"),
			PoolSize:     envInt("BEEFTRACE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("BEEFTRACE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("BEEFTRACE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("BEEFTRACE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("BEEFTRACE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Cache: CacheConfig{
			RemoteURL: envStr("BEEFTRACE_CACHE_URL", "http://localhost:8080"),
			LocalTTL:  envDuration("BEEFTRACE_CACHE_TTL", time.Minute),
			Cooldown:  envDuration("BEEFTRACE_CACHE_COOLDOWN", 30*time.Second),
		},
		Ledger: LedgerConfig{
			ReadTimeout: envDuration("BEEFTRACE_LEDGER_TIMEOUT", 12*time.Second),
			MaxRetries:  envInt("BEEFTRACE_LEDGER_RETRIES", 2),
			Backoff:     envDuration("BEEFTRACE_LEDGER_BACKOFF", time.Second),
		},
		Sync: SyncConfig{
			ChunkSize:  envInt("BEEFTRACE_SYNC_CHUNK", 10),
			ChunkPause: envDuration("BEEFTRACE_SYNC_PAUSE", 500*time.Millisecond),
		},
		Payment: PaymentConfig{
			AnimalBasePriceCents: int64(envInt("BEEFTRACE_PAYMENT_BASE_CENTS", 50000)),
			GatewayLatency:       envDuration("BEEFTRACE_PAYMENT_LATENCY", 2*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("BEEFTRACE_POSTGRES_URL"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
