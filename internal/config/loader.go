package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskmanager.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TASKMANAGER_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKMANAGER_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "TASKMANAGER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "TASKMANAGER_SHUTDOWN_TIMEOUT")
	setInt64(&cfg.Server.BodyLimit, "TASKMANAGER_BODY_LIMIT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TASKMANAGER_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TASKMANAGER_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TASKMANAGER_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TASKMANAGER_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TASKMANAGER_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "TASKMANAGER_NATS_STREAM")
	setString(&cfg.Redis.URL, "REDIS_URL")

	setString(&cfg.Logging.Level, "TASKMANAGER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKMANAGER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TASKMANAGER_LOG_ASYNC")

	// Auth
	setBool(&cfg.Auth.Enabled, "TASKMANAGER_AUTH_ENABLED")
	setString(&cfg.Auth.JWTSecret, "TASKMANAGER_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "TASKMANAGER_JWT_ISSUER")
	setInt64(&cfg.Auth.DefaultActorID, "TASKMANAGER_DEFAULT_ACTOR_ID")

	setInt(&cfg.Breaker.MaxFailures, "TASKMANAGER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TASKMANAGER_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "TASKMANAGER_RATE_RPS")
	setInt(&cfg.Rate.Burst, "TASKMANAGER_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "TASKMANAGER_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "TASKMANAGER_RATE_MAX_IDLE_TIME")

	// Idempotency
	setBool(&cfg.Idempotency.Enabled, "TASKMANAGER_IDEMPOTENCY_ENABLED")
	setString(&cfg.Idempotency.Bucket, "TASKMANAGER_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "TASKMANAGER_IDEMPOTENCY_TTL")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TASKMANAGER_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2, "TASKMANAGER_CACHE_L2")
	setString(&cfg.Cache.L2Bucket, "TASKMANAGER_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TASKMANAGER_CACHE_L2_TTL")
	setDuration(&cfg.Cache.UserTTL, "TASKMANAGER_CACHE_USER_TTL")

	// Notifications
	setString(&cfg.Notify.Channel, "TASKMANAGER_NOTIFY_CHANNEL")
	setDuration(&cfg.Notify.Timeout, "TASKMANAGER_NOTIFY_TIMEOUT")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "TASKMANAGER_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "TASKMANAGER_OTEL_INSECURE")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setFloat64(&cfg.OTEL.SampleRate, "TASKMANAGER_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters when auth is enabled")
	}
	if !cfg.Auth.Enabled && cfg.Auth.DefaultActorID < 1 {
		return errors.New("auth.default_actor_id must be >= 1 when auth is disabled")
	}
	switch cfg.Cache.L2 {
	case "nats", "none":
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required when cache.l2 is redis")
		}
	default:
		return fmt.Errorf("cache.l2 must be one of nats, redis, none (got %q)", cfg.Cache.L2)
	}
	if cfg.Notify.Channel == "" {
		return errors.New("notify.channel is required")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
