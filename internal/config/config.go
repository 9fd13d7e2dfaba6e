package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Triage transports accepted by TRIAGE_TRANSPORT.
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportRiver  = "river"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Triage   TriageConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory repositories.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	AdminEmail            string
	AdminPassword         string
}

// TriageConfig controls the ticket/created handoff and its reconciler.
type TriageConfig struct {
	Transport             string
	Queue                 string
	MaxAttempts           int
	StreamMaxLen          int64
	Buffer                int
	PublishTimeoutSeconds int
	ReconcileCron         string
	ReconcileGraceSeconds int
	ReconcileBatch        int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-assistant"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AdminEmail:            os.Getenv("AUTH_ADMIN_EMAIL"),
			AdminPassword:         os.Getenv("AUTH_ADMIN_PASSWORD"),
		},
		Triage: TriageConfig{
			Transport:             strings.ToLower(getEnv("TRIAGE_TRANSPORT", TransportMemory)),
			Queue:                 getEnv("TRIAGE_QUEUE", "triage"),
			MaxAttempts:           getEnvAsInt("TRIAGE_MAX_ATTEMPTS", 25),
			StreamMaxLen:          int64(getEnvAsInt("TRIAGE_STREAM_MAXLEN", 100000)),
			Buffer:                getEnvAsInt("TRIAGE_BUFFER", 256),
			PublishTimeoutSeconds: getEnvAsInt("TRIAGE_PUBLISH_TIMEOUT_SECONDS", 5),
			ReconcileCron:         getEnv("TRIAGE_RECONCILE_CRON", "*/5 * * * *"),
			ReconcileGraceSeconds: getEnvAsInt("TRIAGE_RECONCILE_GRACE_SECONDS", 120),
			ReconcileBatch:        getEnvAsInt("TRIAGE_RECONCILE_BATCH", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Triage.Transport {
	case TransportMemory:
	case TransportRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("TRIAGE_TRANSPORT=redis requires REDIS_ADDR")
		}
	case TransportRiver:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("TRIAGE_TRANSPORT=river requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("invalid TRIAGE_TRANSPORT %q", c.Triage.Transport)
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return fmt.Errorf("AUTH_ADMIN_EMAIL and AUTH_ADMIN_PASSWORD must be set together")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PublishTimeout bounds a single handoff to the triage transport.
func (t TriageConfig) PublishTimeout() time.Duration {
	if t.PublishTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(t.PublishTimeoutSeconds) * time.Second
}

// ReconcileGrace is how long a ticket may wait for its first notification
// before the reconciler re-emits it.
func (t TriageConfig) ReconcileGrace() time.Duration {
	return time.Duration(t.ReconcileGraceSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
