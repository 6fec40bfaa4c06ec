package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultMaxUploadBytes is the largest backup file that may be sent to
// MoodleNet (1.07 GB).
const DefaultMaxUploadBytes = 1_070_000_000

// DefaultSharePolicy allows sharing for course editors and managers while the
// site-wide toggle is on.
const DefaultSharePolicy = `enabled && role in ["editingteacher", "manager", "coursecreator"]`

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	MoodleNet MoodleNetConfig
	Storage   StorageConfig
	Sync      SyncConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MoodleNetConfig holds the outbound sharing settings consumed by the share
// pipeline. They are owned by the (excluded) admin settings layer and surfaced
// here as plain configuration.
type MoodleNetConfig struct {
	Enabled          bool
	OutboundIssuerID int64
	MaxUploadBytes   int64
	SharePolicy      string
	SupportURL       string
	ShareWorkers     int
	ShareRateLimit   int64
	ShareRateWindow  time.Duration
}

// StorageConfig holds scoped temp-file storage settings
type StorageConfig struct {
	TempDir string
}

// SyncConfig holds sync-queue drain settings
type SyncConfig struct {
	Interval time.Duration
	LeaseTTL time.Duration
	RoomsURL string
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "moodle"),
			User:        getEnv("POSTGRES_USER", "moodle"),
			Password:    getEnv("POSTGRES_PASSWORD", "moodle"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MoodleNet: MoodleNetConfig{
			Enabled:          getEnvBool("MOODLENET_ENABLED", true),
			OutboundIssuerID: getEnvInt64("MOODLENET_OAUTH_ISSUER_ID", 0),
			MaxUploadBytes:   getEnvInt64("MOODLENET_MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
			SharePolicy:      getEnv("MOODLENET_SHARE_POLICY", DefaultSharePolicy),
			SupportURL:       getEnv("MOODLENET_SUPPORT_URL", ""),
			ShareWorkers:     getEnvInt("MOODLENET_SHARE_WORKERS", 4),
			ShareRateLimit:   getEnvInt64("MOODLENET_SHARE_RATE_LIMIT", 20),
			ShareRateWindow:  getEnvDuration("MOODLENET_SHARE_RATE_WINDOW", 1*time.Hour),
		},
		Storage: StorageConfig{
			TempDir: getEnv("STORAGE_TEMP_DIR", os.TempDir()),
		},
		Sync: SyncConfig{
			Interval: getEnvDuration("SYNC_INTERVAL", 1*time.Minute),
			LeaseTTL: getEnvDuration("SYNC_LEASE_TTL", 5*time.Minute),
			RoomsURL: getEnv("SYNC_ROOMS_URL", "http://localhost:8448"),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.MoodleNet.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MoodleNet.MaxUploadBytes)
	}

	if c.MoodleNet.ShareWorkers < 1 {
		return fmt.Errorf("share workers must be at least 1, got %d", c.MoodleNet.ShareWorkers)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis address in host:port form
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
