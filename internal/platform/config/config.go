package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the engine reads from the environment.
// main loads .env (if present) before calling FromEnv; nothing else in the
// codebase touches os.Getenv.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Video    VideoConfig
	Audit    AuditConfig
	Reaper   ReaperConfig
	Links    LinksConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// PostgresConfig captures the persistence backend. Empty DSN means run on
// in-memory stores (dev, tests).
type PostgresConfig struct {
	DSN           string
	MigrationsDir string
}

// RedisConfig captures the optional access-code cache backend.
// Empty URL means Redis is not configured.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// VideoConfig captures the video-room credential signer.
type VideoConfig struct {
	AppID         string
	Domain        string
	SigningKey    string
	CredentialTTL time.Duration
}

// AuditConfig captures the optional Kafka mirror for audit events.
// Empty Brokers means events go to the store only.
type AuditConfig struct {
	Brokers []string
	Topic   string
}

// ReaperConfig captures the expiry sweep loop.
type ReaperConfig struct {
	Interval time.Duration
}

// LinksConfig captures the public base URL embedded in access-code payloads
// and share messages.
type LinksConfig struct {
	PublicBaseURL string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:            envString("RONFLOW_ADDR", ":8080"),
			RequestTimeout:  envDuration("RONFLOW_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envDuration("RONFLOW_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:           os.Getenv("RONFLOW_POSTGRES_DSN"),
			MigrationsDir: envString("RONFLOW_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("RONFLOW_REDIS_URL"),
			PoolSize:     envInt("RONFLOW_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("RONFLOW_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("RONFLOW_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("RONFLOW_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("RONFLOW_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Video: VideoConfig{
			AppID:         envString("RONFLOW_VIDEO_APP_ID", "ronflow"),
			Domain:        envString("RONFLOW_VIDEO_DOMAIN", "meet.jitsi"),
			SigningKey:    envString("RONFLOW_VIDEO_SIGNING_KEY", "dev-secret-key-change-in-production"),
			CredentialTTL: envDuration("RONFLOW_VIDEO_CREDENTIAL_TTL", 2*time.Hour),
		},
		Audit: AuditConfig{
			Brokers: envList("RONFLOW_AUDIT_BROKERS"),
			Topic:   envString("RONFLOW_AUDIT_TOPIC", "ronflow.audit"),
		},
		Reaper: ReaperConfig{
			Interval: envDuration("RONFLOW_REAPER_INTERVAL", 15*time.Minute),
		},
		Links: LinksConfig{
			PublicBaseURL: envString("RONFLOW_PUBLIC_BASE_URL", "http://localhost:8080"),
		},
	}
}

func envString(key, fallback string) string {
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

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
