// Package config builds the process configuration from environment variables
// so main stays lean. Every knob has a development default; production
// deployments override through the SANCTUM_* environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Analytics  AnalyticsConfig
	Audit      AuditConfig
	Classifier ClassifierConfig
	Context    ContextStoreConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr           string
	LogLevel       string
	RequestTimeout time.Duration
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	// AdminToken guards the audit review API. When AdminTokenHash is set it
	// takes precedence and the plaintext comparison path is not used.
	AdminToken     string
	AdminTokenHash string
}

// PostgresConfig configures the primary database. An empty DSN selects the
// in-memory stores; the trust guarantees do not depend on which store backs
// the service.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the optional policy cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PolicyTTL    time.Duration
}

// KafkaConfig configures the optional audit relay. Empty brokers disable the
// relay; the synchronous audit guarantee never depends on Kafka.
type KafkaConfig struct {
	Brokers        []string
	AuditTopic     string
	RelayInterval  time.Duration
	RelayBatchSize int
	ConsumerGroup  string
}

// AnalyticsConfig configures the external analytical service client.
type AnalyticsConfig struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	ProbeInterval    time.Duration
}

// AuditConfig bounds the fail-closed audit write path.
type AuditConfig struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	WriteTimeout    time.Duration
}

// ClassifierConfig bounds the PHI classifier.
type ClassifierConfig struct {
	MaxTextBytes int
}

// ContextStoreConfig bounds client context reads.
type ContextStoreConfig struct {
	ReadTimeout time.Duration
	MaxAttempts uint64
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:           envStr("SANCTUM_ADDR", ":8080"),
			LogLevel:       envStr("SANCTUM_LOG_LEVEL", "info"),
			RequestTimeout: envDuration("SANCTUM_REQUEST_TIMEOUT", 30*time.Second),
			// Development default - must be overridden in production
			JWTSigningKey:  envStr("SANCTUM_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:      envStr("SANCTUM_JWT_ISSUER", "sanctum"),
			JWTAudience:    envStr("SANCTUM_JWT_AUDIENCE", "sanctum-api"),
			AdminToken:     envStr("SANCTUM_ADMIN_TOKEN", ""),
			AdminTokenHash: envStr("SANCTUM_ADMIN_TOKEN_HASH", ""),
		},
		Postgres: PostgresConfig{
			DSN:             envStr("SANCTUM_POSTGRES_DSN", ""),
			MaxOpenConns:    envInt("SANCTUM_POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("SANCTUM_POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("SANCTUM_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     envBool("SANCTUM_POSTGRES_AUTOMIGRATE", false),
		},
		Redis: RedisConfig{
			URL:          envStr("SANCTUM_REDIS_URL", ""),
			PoolSize:     envInt("SANCTUM_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("SANCTUM_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("SANCTUM_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("SANCTUM_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("SANCTUM_REDIS_WRITE_TIMEOUT", 3*time.Second),
			PolicyTTL:    envDuration("SANCTUM_REDIS_POLICY_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:        envStrSlice("SANCTUM_KAFKA_BROKERS", nil),
			AuditTopic:     envStr("SANCTUM_KAFKA_AUDIT_TOPIC", "sanctum.audit.entries"),
			RelayInterval:  envDuration("SANCTUM_KAFKA_RELAY_INTERVAL", 2*time.Second),
			RelayBatchSize: envInt("SANCTUM_KAFKA_RELAY_BATCH_SIZE", 100),
			ConsumerGroup:  envStr("SANCTUM_KAFKA_CONSUMER_GROUP", "sanctum-compliance"),
		},
		Analytics: AnalyticsConfig{
			BaseURL:          envStr("SANCTUM_ANALYTICS_URL", ""),
			APIKey:           envStr("SANCTUM_ANALYTICS_API_KEY", ""),
			Timeout:          envDuration("SANCTUM_ANALYTICS_TIMEOUT", 10*time.Second),
			FailureThreshold: envInt("SANCTUM_ANALYTICS_FAILURE_THRESHOLD", 5),
			SuccessThreshold: envInt("SANCTUM_ANALYTICS_SUCCESS_THRESHOLD", 2),
			ProbeInterval:    envDuration("SANCTUM_ANALYTICS_PROBE_INTERVAL", 30*time.Second),
		},
		Audit: AuditConfig{
			MaxAttempts:     uint64(envInt("SANCTUM_AUDIT_MAX_ATTEMPTS", 3)),
			InitialInterval: envDuration("SANCTUM_AUDIT_RETRY_INITIAL", 50*time.Millisecond),
			MaxInterval:     envDuration("SANCTUM_AUDIT_RETRY_MAX", 500*time.Millisecond),
			WriteTimeout:    envDuration("SANCTUM_AUDIT_WRITE_TIMEOUT", 5*time.Second),
		},
		Classifier: ClassifierConfig{
			MaxTextBytes: envInt("SANCTUM_CLASSIFIER_MAX_TEXT_BYTES", 64*1024),
		},
		Context: ContextStoreConfig{
			ReadTimeout: envDuration("SANCTUM_CONTEXT_READ_TIMEOUT", 5*time.Second),
			MaxAttempts: uint64(envInt("SANCTUM_CONTEXT_MAX_ATTEMPTS", 3)),
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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

func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
