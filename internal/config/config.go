package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported export sinks
const (
	SinkFile = "file"
	SinkGCS  = "gcs"
)

// Config represents the application configuration
type Config struct {
	Environment string            `json:"environment" yaml:"environment"`
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	API         APIConfig         `json:"api" yaml:"api"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Redis       RedisConfig       `json:"redis" yaml:"redis"`
	Correlation CorrelationConfig `json:"correlation" yaml:"correlation"`
	Export      ExportConfig      `json:"export" yaml:"export"`
	Scheduling  SchedulingConfig  `json:"scheduling" yaml:"scheduling"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int    `json:"port" yaml:"port"`
	Host string `json:"host" yaml:"host"`
}

// APIConfig contains listing defaults
type APIConfig struct {
	DefaultPageSize int `json:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int `json:"max_page_size" yaml:"max_page_size"`
}

// DatabaseConfig contains PostgreSQL and SQLite configuration
type DatabaseConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	Path        string `json:"path" yaml:"path"` // sqlite only
	DSN         string `json:"dsn" yaml:"dsn"`
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Database    string `json:"database" yaml:"database"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	SSLMode     string `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConns    int    `json:"max_conns" yaml:"max_conns"`
	MinConns    int    `json:"min_conns" yaml:"min_conns"`
	MaxLifetime int    `json:"max_lifetime" yaml:"max_lifetime"`   // minutes
	MaxIdleTime int    `json:"max_idle_time" yaml:"max_idle_time"` // minutes
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// CorrelationConfig tunes the correlation engine
type CorrelationConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

// ExportConfig selects where match reports are written
type ExportConfig struct {
	Sink     string `json:"sink" yaml:"sink"`
	Dir      string `json:"dir" yaml:"dir"`
	Bucket   string `json:"bucket" yaml:"bucket"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	Compress bool   `json:"compress" yaml:"compress"`
}

// SchedulingConfig contains cron specs for periodic jobs. Empty disables a job.
type SchedulingConfig struct {
	CorrelationInterval string `json:"correlation_interval" yaml:"correlation_interval"`
	ExportInterval      string `json:"export_interval" yaml:"export_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port: 8347,
			Host: "0.0.0.0",
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     100,
		},
		Database: DatabaseConfig{
			Driver:      DriverPostgres,
			Path:        "vuln-correlator.db",
			Host:        "localhost",
			Port:        5432,
			Database:    "vulndb",
			Username:    "postgres",
			SSLMode:     "disable",
			MaxConns:    20,
			MinConns:    2,
			MaxLifetime: 30,
			MaxIdleTime: 5,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Correlation: CorrelationConfig{
			Workers: 4,
		},
		Export: ExportConfig{
			Sink:     SinkFile,
			Dir:      "exports",
			Prefix:   "matches",
			Compress: true,
		},
		Scheduling: SchedulingConfig{
			CorrelationInterval: "@hourly",
			ExportInterval:      "@daily",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Build DSN if not provided directly
	if cfg.Database.Driver == DriverPostgres && cfg.Database.DSN == "" {
		cfg.Database.DSN = buildDSN(cfg.Database)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays values from a YAML file
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnv overrides values with environment variables where set
func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Server.Port = getEnvInt("PORT", getEnvInt("SERVER_PORT", c.Server.Port))
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)

	c.API.DefaultPageSize = getEnvInt("DEFAULT_PAGE_SIZE", c.API.DefaultPageSize)
	c.API.MaxPageSize = getEnvInt("MAX_PAGE_SIZE", c.API.MaxPageSize)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.DSN = getEnv("DATABASE_URL", getEnv("DB_DSN", c.Database.DSN))
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.Username = getEnv("DB_USER", c.Database.Username)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxConns = getEnvInt("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxLifetime = getEnvInt("DB_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.MaxIdleTime = getEnvInt("DB_MAX_IDLE_TIME", c.Database.MaxIdleTime)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Correlation.Workers = getEnvInt("CORRELATION_WORKERS", c.Correlation.Workers)

	c.Export.Sink = getEnv("EXPORT_SINK", c.Export.Sink)
	c.Export.Dir = getEnv("EXPORT_DIR", c.Export.Dir)
	c.Export.Bucket = getEnv("EXPORT_BUCKET", c.Export.Bucket)
	c.Export.Prefix = getEnv("EXPORT_PREFIX", c.Export.Prefix)
	c.Export.Compress = getEnvBool("EXPORT_COMPRESS", c.Export.Compress)

	c.Scheduling.CorrelationInterval = getEnv("CORRELATION_INTERVAL", c.Scheduling.CorrelationInterval)
	c.Scheduling.ExportInterval = getEnv("EXPORT_INTERVAL", c.Scheduling.ExportInterval)
}

// validate validates the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("Redis address is required")
	}

	if c.Correlation.Workers <= 0 {
		return fmt.Errorf("correlation workers must be greater than 0")
	}

	if c.API.DefaultPageSize <= 0 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	switch c.Export.Sink {
	case SinkFile:
		if c.Export.Dir == "" {
			return fmt.Errorf("export directory is required for the file sink")
		}
	case SinkGCS:
		if c.Export.Bucket == "" {
			return fmt.Errorf("export bucket is required for the gcs sink")
		}
	default:
		return fmt.Errorf("unsupported export sink %q", c.Export.Sink)
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// buildDSN builds a PostgreSQL DSN from individual components
func buildDSN(db DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode,
	)
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an environment variable as an integer or a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns an environment variable as a boolean or a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
