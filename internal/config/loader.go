package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentrelay.yaml"

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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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
	setString(&cfg.Server.Port, "AGENTRELAY_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTRELAY_CORS_ORIGIN")
	setString(&cfg.Server.BaseURL, "AGENTRELAY_BASE_URL")
	setFloat64(&cfg.Server.RateLimitRPS, "AGENTRELAY_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "AGENTRELAY_RATE_LIMIT_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTRELAY_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTRELAY_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTRELAY_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTRELAY_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTRELAY_PG_HEALTH_CHECK")
	setString(&cfg.Storage.Driver, "AGENTRELAY_STORAGE_DRIVER")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "AGENTRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTRELAY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTRELAY_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "AGENTRELAY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTRELAY_BREAKER_TIMEOUT")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "AGENTRELAY_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "AGENTRELAY_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "AGENTRELAY_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "AGENTRELAY_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "AGENTRELAY_OTEL_SAMPLE_RATE")

	// A2A
	setDuration(&cfg.A2A.SessionTTL, "AGENTRELAY_A2A_SESSION_TTL")
	setDuration(&cfg.A2A.ArchiveAfter, "AGENTRELAY_A2A_ARCHIVE_AFTER")
	setDuration(&cfg.A2A.CleanupInterval, "AGENTRELAY_A2A_CLEANUP_INTERVAL")
	setInt(&cfg.A2A.MessageLimit, "AGENTRELAY_A2A_MESSAGE_LIMIT")
	setInt(&cfg.A2A.UserTaskLimit, "AGENTRELAY_A2A_USER_TASK_LIMIT")
	setInt(&cfg.A2A.ActiveSessionsLimit, "AGENTRELAY_A2A_ACTIVE_SESSIONS_LIMIT")
	setDuration(&cfg.A2A.ThreadCacheTTL, "AGENTRELAY_A2A_THREAD_CACHE_TTL")
	setInt64(&cfg.A2A.CacheMaxMB, "AGENTRELAY_A2A_CACHE_MAX_MB")

	// MCP
	setString(&cfg.MCP.ServersDir, "AGENTRELAY_MCP_SERVERS_DIR")
	setStringSlice(&cfg.MCP.Servers, "AGENTRELAY_MCP_SERVERS")
	setDuration(&cfg.MCP.RequestTimeout, "AGENTRELAY_MCP_REQUEST_TIMEOUT")
	setInt(&cfg.MCP.ReadyPollAttempts, "AGENTRELAY_MCP_READY_POLL_ATTEMPTS")
	setDuration(&cfg.MCP.ReadyPollInterval, "AGENTRELAY_MCP_READY_POLL_INTERVAL")
	setInt(&cfg.MCP.HealthAttempts, "AGENTRELAY_MCP_HEALTH_ATTEMPTS")
	setDuration(&cfg.MCP.HealthInterval, "AGENTRELAY_MCP_HEALTH_INTERVAL")
	setDuration(&cfg.MCP.RestartGrace, "AGENTRELAY_MCP_RESTART_GRACE")
	setInt64(&cfg.MCP.MaxInFlight, "AGENTRELAY_MCP_MAX_IN_FLIGHT")
	setBool(&cfg.MCP.ServerEnabled, "AGENTRELAY_MCP_SERVER_ENABLED")
	setString(&cfg.MCP.ServerAddr, "AGENTRELAY_MCP_SERVER_ADDR")
	setString(&cfg.MCP.ServerAPIKey, "AGENTRELAY_MCP_SERVER_API_KEY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when rate limiting is enabled")
	}
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver %q must be postgres or memory", cfg.Storage.Driver)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.A2A.SessionTTL <= 0 {
		return errors.New("a2a.session_ttl must be > 0")
	}
	if cfg.A2A.ArchiveAfter <= 0 {
		return errors.New("a2a.archive_after must be > 0")
	}
	if cfg.MCP.RequestTimeout <= 0 {
		return errors.New("mcp.request_timeout must be > 0")
	}
	if cfg.MCP.ReadyPollAttempts < 1 {
		return errors.New("mcp.ready_poll_attempts must be >= 1")
	}
	if cfg.MCP.HealthAttempts < 1 {
		return errors.New("mcp.health_attempts must be >= 1")
	}
	if cfg.MCP.MaxInFlight < 1 {
		return errors.New("mcp.max_in_flight must be >= 1")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setStringSlice splits a comma-separated value, dropping empty entries.
func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
