package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Kafka        KafkaConfig
	Escalation   EscalationConfig
	Cache        CacheConfig
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

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	ClientName string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines bearer token parameters. Tokens are issued by the identity
// service; this service only verifies them.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NotificationConfig selects where escalation notifications go.
type NotificationConfig struct {
	Enabled bool
	// BreakerFailures consecutive publish failures open the circuit.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// KafkaConfig holds broker settings for the notification publisher.
type KafkaConfig struct {
	Brokers         []string
	EscalationTopic string
	AssignmentTopic string
	WriteTimeout    time.Duration
}

// EscalationConfig tunes the escalation scan.
type EscalationConfig struct {
	ScanInterval        time.Duration
	ScanTimeout         time.Duration
	Workers             int
	ResponseLookahead   time.Duration
	ResolutionLookahead time.Duration
	// OverloadThreshold is the number of open CRITICAL tickets that makes a
	// senior technician ineligible for reassignment.
	OverloadThreshold int
}

// CacheConfig configures the SLA policy cache.
type CacheConfig struct {
	Enabled   bool
	PolicyTTL time.Duration
	KeyPrefix string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	appName := getEnv("APP_NAME", "msp-sla")

	cfg := &Config{
		App: AppConfig{
			Name:                  appName,
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			ApplicationName: appName,
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
			ClientName: appName,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
		},
		Notification: NotificationConfig{
			Enabled:         getEnvAsBool("NOTIFY_ENABLED", true),
			BreakerFailures: uint32(getEnvAsInt("NOTIFY_BREAKER_FAILURES", 5)),
			BreakerTimeout:  getEnvAsDuration("NOTIFY_BREAKER_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvAsList("KAFKA_BROKERS", nil),
			EscalationTopic: getEnv("KAFKA_ESCALATION_TOPIC", "sla.escalations"),
			AssignmentTopic: getEnv("KAFKA_ASSIGNMENT_TOPIC", "sla.assignments"),
			WriteTimeout:    getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		},
		Escalation: EscalationConfig{
			ScanInterval:        getEnvAsDuration("ESCALATION_SCAN_INTERVAL", 5*time.Minute),
			ScanTimeout:         getEnvAsDuration("ESCALATION_SCAN_TIMEOUT", 4*time.Minute),
			Workers:             getEnvAsInt("ESCALATION_WORKERS", 4),
			ResponseLookahead:   getEnvAsDuration("ESCALATION_RESPONSE_LOOKAHEAD", time.Hour),
			ResolutionLookahead: getEnvAsDuration("ESCALATION_RESOLUTION_LOOKAHEAD", 2*time.Hour),
			OverloadThreshold:   getEnvAsInt("ESCALATION_OVERLOAD_THRESHOLD", 3),
		},
		Cache: CacheConfig{
			Enabled:   getEnvAsBool("CACHE_ENABLED", true),
			PolicyTTL: getEnvAsDuration("CACHE_POLICY_TTL", 10*time.Minute),
			KeyPrefix: getEnv("CACHE_KEY_PREFIX", "msp-sla"),
		},
	}

	if cfg.Escalation.ScanInterval <= 0 {
		return nil, fmt.Errorf("invalid ESCALATION_SCAN_INTERVAL: must be positive")
	}
	return cfg, nil
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
