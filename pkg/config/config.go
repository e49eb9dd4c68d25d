package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/observability"
	"github.com/ontoserve/warden/pkg/storage"
)

// Cache backend names accepted by CacheConfig.Backend.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database storage.ConnectionConfig `yaml:"database"`

	// Decision cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Audit trail configuration
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// CacheConfig holds decision cache configuration
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// DatabaseEnabled writes audit events to the audit_events table.
	DatabaseEnabled bool `yaml:"database_enabled"`

	// FilePath, when set, additionally writes JSON-lines audit events
	// to rotating files under this path.
	FilePath string `yaml:"file_path"`

	// RetentionDays bounds how long database audit events are kept.
	// Zero disables cleanup.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds observability settings. The log level is
// carried as a name in YAML and parsed into the typed level.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration: defaults, then the optional YAML
// file named by WARDEN_CONFIG_FILE, then environment overrides.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("WARDEN_CONFIG_FILE", ""); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
		if cfg.Observability.LogLevelName != "" {
			cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)
		}
	}
	loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: storage.DefaultConnectionConfig(),
		Cache: CacheConfig{
			Backend:    CacheBackendMemory,
			TTL:        authz.DefaultCacheTTL,
			MaxEntries: authz.DefaultCacheSize,
			RedisAddr:  "localhost:6379",
		},
		Audit: AuditConfig{
			DatabaseEnabled: true,
			RetentionDays:   90,
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			MetricsEnabled: true,
		},
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	cfg.Server.Host = getEnv("WARDEN_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("WARDEN_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.HealthPort = getEnv("WARDEN_HEALTH_PORT", cfg.Server.HealthPort)

	cfg.Database.Driver = getEnv("WARDEN_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("WARDEN_DB_DSN", cfg.Database.DSN)
	cfg.Database.MaxConns = getEnvInt("WARDEN_DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvInt("WARDEN_DB_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.Timeout = getEnvDuration("WARDEN_DB_TIMEOUT", cfg.Database.Timeout)

	cfg.Cache.Backend = strings.ToLower(getEnv("WARDEN_CACHE_BACKEND", cfg.Cache.Backend))
	cfg.Cache.TTL = getEnvDuration("WARDEN_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.MaxEntries = getEnvInt("WARDEN_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.RedisAddr = getEnv("WARDEN_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("WARDEN_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("WARDEN_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Audit.DatabaseEnabled = getEnvBool("WARDEN_AUDIT_DB_ENABLED", cfg.Audit.DatabaseEnabled)
	cfg.Audit.FilePath = getEnv("WARDEN_AUDIT_FILE_PATH", cfg.Audit.FilePath)
	cfg.Audit.RetentionDays = getEnvInt("WARDEN_AUDIT_RETENTION_DAYS", cfg.Audit.RetentionDays)

	if level := getEnv("WARDEN_LOG_LEVEL", ""); level != "" {
		cfg.Observability.LogLevel = parseLogLevel(level)
	}
	cfg.Observability.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendNone:
	case CacheBackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis, or none)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention days must not be negative")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
