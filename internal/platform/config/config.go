package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	PostgresURL   string
	JWTSigningKey string
	// AuditBuffer > 0 switches the audit publisher to async mode with a
	// channel of that size.
	AuditBuffer int

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig holds the summary cache connection settings. An empty URL
// disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the audit event sink settings. No brokers disables
// the sink; events still land in the audit store.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SummaryCacheTTL bounds staleness of the denormalized portfolio views.
var SummaryCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("VAULT_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("VAULT_KAFKA_TOPIC")

	return Server{
		Addr:          addr,
		PostgresURL:   os.Getenv("VAULT_POSTGRES_URL"),
		JWTSigningKey: jwtSigningKey,
		AuditBuffer:   envInt("VAULT_AUDIT_BUFFER", 0),
		Redis: RedisConfig{
			URL:          os.Getenv("VAULT_REDIS_URL"),
			PoolSize:     envInt("VAULT_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("VAULT_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("VAULT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("VAULT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("VAULT_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
		},
	}
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
