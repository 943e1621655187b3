// Package config loads and validates the importer service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeout is the default HTTP server read timeout
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default HTTP server write timeout
	DefaultWriteTimeout = 30 * time.Second

	// DefaultBatchSize is the number of records processed per batch when
	// the caller does not specify one
	DefaultBatchSize = 10
	// MinBatchSize is the smallest accepted batch size
	MinBatchSize = 1
	// MaxBatchSize is the largest accepted batch size
	MaxBatchSize = 50

	// DefaultAssetTimeout bounds the liveness check and download of one asset
	DefaultAssetTimeout = 30 * time.Second

	// DefaultSessionLockTTL is how long a session batch lock is held before
	// expiring on its own
	DefaultSessionLockTTL = 10 * time.Minute
)

type Config struct {
	Debug        bool               `yaml:"debug"` // Controls log level and format
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	ContentStore ContentStoreConfig `yaml:"content_store"`
	Importer     ImporterConfig     `yaml:"importer"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8075"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ContentStoreConfig points the importer at the target content API.
// An empty URL selects the in-memory store, which is only useful for
// dry runs and tests.
type ContentStoreConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	SkipTLSVerify bool          `yaml:"skip_tls_verify"`
}

type ImporterConfig struct {
	BatchSize      int           `yaml:"batch_size"`       // Default batch size, clamped to [1, 50]
	AssetTimeout   time.Duration `yaml:"asset_timeout"`    // Bound on asset HEAD/GET requests
	SessionLockTTL time.Duration `yaml:"session_lock_ttl"` // Expiry of the per-session batch lock
	UploadDir      string        `yaml:"upload_dir"`       // Where uploaded dataset files are kept
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Importer.BatchSize < MinBatchSize || c.Importer.BatchSize > MaxBatchSize {
		return fmt.Errorf("importer.batch_size must be between %d and %d, got %d",
			MinBatchSize, MaxBatchSize, c.Importer.BatchSize)
	}
	if c.ContentStore.URL != "" && c.ContentStore.Token == "" {
		return errors.New("content_store.token is required when content_store.url is set")
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8075"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Importer.BatchSize == 0 {
		cfg.Importer.BatchSize = DefaultBatchSize
	}
	if cfg.Importer.AssetTimeout == 0 {
		cfg.Importer.AssetTimeout = DefaultAssetTimeout
	}
	if cfg.Importer.SessionLockTTL == 0 {
		cfg.Importer.SessionLockTTL = DefaultSessionLockTTL
	}
	if cfg.Importer.UploadDir == "" {
		cfg.Importer.UploadDir = "data/uploads"
	}
	if cfg.ContentStore.Timeout == 0 {
		cfg.ContentStore.Timeout = DefaultAssetTimeout
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		cfg.Database.Port = port
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.DBName = name
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if storeURL := os.Getenv("CONTENT_STORE_URL"); storeURL != "" {
		cfg.ContentStore.URL = storeURL
	}
	if token := os.Getenv("CONTENT_STORE_TOKEN"); token != "" {
		cfg.ContentStore.Token = token
	}
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
	if port := os.Getenv("IMPORTER_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ClampBatchSize bounds a caller-supplied batch size to the allowed range,
// substituting the configured default when the caller passes zero.
func (c *ImporterConfig) ClampBatchSize(requested int) int {
	if requested <= 0 {
		requested = c.BatchSize
	}
	if requested < MinBatchSize {
		return MinBatchSize
	}
	if requested > MaxBatchSize {
		return MaxBatchSize
	}
	return requested
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
