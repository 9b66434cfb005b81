package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvRelayURL     = "RELAYDESK_RELAY_URL"
	EnvRelayAPIKey  = "RELAYDESK_RELAY_API_KEY"
	EnvSecretKey    = "RELAYDESK_SECRET_KEY"
	EnvRedisURL     = "RELAYDESK_REDIS_URL"
	EnvDatabasePath = "RELAYDESK_DATABASE_PATH"
	EnvAPIKey       = "RELAYDESK_API_KEY"
)

// Attachment storage backends
const (
	BackendInline = "inline"
	BackendBolt   = "bolt"
	BackendS3     = "s3"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the main configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Relay       RelayConfig       `yaml:"relay"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Cache       CacheConfig       `yaml:"cache"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains the sqlite location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RelayConfig points at the external SMTP relay
type RelayConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AttachmentsConfig contains upload limits and the storage backend
type AttachmentsConfig struct {
	Backend            string        `yaml:"backend"` // inline, bolt, s3
	MaxFiles           int           `yaml:"max_files"`
	MaxFileSize        int64         `yaml:"max_file_size"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	ResolveConcurrency int           `yaml:"resolve_concurrency"`
	BoltPath           string        `yaml:"bolt_path"`
	S3                 S3Config      `yaml:"s3"`
}

// S3Config contains S3-compatible bucket settings
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// SMTPConfig contains settings for stored project SMTP credentials
type SMTPConfig struct {
	// SecretKey is a 64 char hex string (32 bytes). Empty stores passwords unsealed.
	SecretKey string `yaml:"secret_key"`
}

// CacheConfig contains the SMTP config cache settings
type CacheConfig struct {
	Backend  string        `yaml:"backend"` // memory, redis
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// APIConfig contains API behaviour settings
type APIConfig struct {
	// APIKey, when set, is required as a bearer token or X-API-Key header.
	APIKey string `yaml:"api_key"`
	// SendRatePerMinute limits sends per project. Negative disables it.
	SendRatePerMinute int `yaml:"send_rate_per_minute"`
	// UserSendRatePerMinute limits sends per console user. Zero disables it.
	UserSendRatePerMinute int   `yaml:"user_send_rate_per_minute"`
	SendBurst             int   `yaml:"send_burst"`
	MaxBodyBytes          int64 `yaml:"max_body_bytes"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text, pretty
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/var/lib/relaydesk/relaydesk.db",
		},
		Relay: RelayConfig{
			BaseURL: "http://localhost:8025",
			Timeout: 30 * time.Second,
		},
		Attachments: AttachmentsConfig{
			Backend:            BackendInline,
			MaxFiles:           5,
			MaxFileSize:        10 * 1024 * 1024,
			FetchTimeout:       15 * time.Second,
			ResolveConcurrency: 4,
			BoltPath:           "/var/lib/relaydesk/blobs.db",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     5 * time.Minute,
		},
		API: APIConfig{
			SendRatePerMinute: 60,
			SendBurst:         10,
			MaxBodyBytes:      32 * 1024 * 1024,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. An empty path uses defaults
// and environment overrides only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults fills every zero value from Defaults
func (c *Config) setDefaults() error {
	if err := mergo.Merge(c, Defaults()); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRelayURL); ok && v != "" {
		c.Relay.BaseURL = v
	}
	if v, ok := lookup(EnvRelayAPIKey); ok && v != "" {
		c.Relay.APIKey = v
	}
	if v, ok := lookup(EnvSecretKey); ok && v != "" {
		c.SMTP.SecretKey = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Cache.RedisURL = v
	}
	if v, ok := lookup(EnvDatabasePath); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.API.APIKey = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.Relay.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("relay.base_url must be an http(s) URL, got %q", c.Relay.BaseURL)
	}
	if c.Relay.Timeout < 0 {
		return fmt.Errorf("relay.timeout must not be negative")
	}

	switch c.Attachments.Backend {
	case BackendInline:
	case BackendBolt:
		if c.Attachments.BoltPath == "" {
			return fmt.Errorf("attachments.bolt_path is required for the bolt backend")
		}
	case BackendS3:
		s3 := c.Attachments.S3
		if s3.Bucket == "" || s3.AccessKey == "" || s3.SecretKey == "" {
			return fmt.Errorf("attachments.s3.bucket, access_key and secret_key are required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid attachments.backend: %s (must be inline, bolt, or s3)", c.Attachments.Backend)
	}
	if c.Attachments.MaxFiles < 1 {
		return fmt.Errorf("attachments.max_files must be at least 1")
	}
	if c.Attachments.MaxFileSize < 1 {
		return fmt.Errorf("attachments.max_file_size must be positive")
	}

	if c.SMTP.SecretKey != "" {
		key, err := hex.DecodeString(c.SMTP.SecretKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("smtp.secret_key must be 64 hex characters")
		}
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid cache.backend: %s (must be memory or redis)", c.Cache.Backend)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json, text, or pretty)", c.Logging.Format)
	}

	return nil
}

// SecretKey returns the decoded smtp.secret_key, or nil when unset.
func (c *Config) SecretKey() *[32]byte {
	if c.SMTP.SecretKey == "" {
		return nil
	}
	raw, err := hex.DecodeString(c.SMTP.SecretKey)
	if err != nil || len(raw) != 32 {
		return nil
	}
	var key [32]byte
	copy(key[:], raw)
	return &key
}
