package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9080"

database:
  path: "/tmp/relaydesk-test.db"

relay:
  base_url: "https://relay.example.com"
  timeout: 10s

attachments:
  backend: bolt
  max_files: 3
  bolt_path: "/tmp/blobs.db"

cache:
  backend: memory
  ttl: 1m

logging:
  level: "debug"
  format: "pretty"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9080" {
		t.Errorf("ListenAddr = %v, want :9080", cfg.Server.ListenAddr)
	}
	if cfg.Relay.BaseURL != "https://relay.example.com" {
		t.Errorf("Relay.BaseURL = %v, want https://relay.example.com", cfg.Relay.BaseURL)
	}
	if cfg.Relay.Timeout != 10*time.Second {
		t.Errorf("Relay.Timeout = %v, want 10s", cfg.Relay.Timeout)
	}
	if cfg.Attachments.MaxFiles != 3 {
		t.Errorf("MaxFiles = %v, want 3", cfg.Attachments.MaxFiles)
	}
	// untouched values come from defaults
	if cfg.Attachments.MaxFileSize != 10*1024*1024 {
		t.Errorf("MaxFileSize = %v, want 10MiB", cfg.Attachments.MaxFileSize)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Format != "pretty" {
		t.Errorf("Logging.Format = %v, want pretty", cfg.Logging.Format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Relay.BaseURL != "http://localhost:8025" {
		t.Errorf("Relay.BaseURL = %v, want http://localhost:8025", cfg.Relay.BaseURL)
	}
	if cfg.Attachments.Backend != BackendInline {
		t.Errorf("Attachments.Backend = %v, want inline", cfg.Attachments.Backend)
	}
	if cfg.Attachments.MaxFiles != 5 {
		t.Errorf("MaxFiles = %v, want 5", cfg.Attachments.MaxFiles)
	}
	if cfg.Cache.Backend != CacheMemory {
		t.Errorf("Cache.Backend = %v, want memory", cfg.Cache.Backend)
	}
	if cfg.SecretKey() != nil {
		t.Error("SecretKey() should be nil by default")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv(EnvRelayURL, "https://env-relay.example.com")
	t.Setenv(EnvSecretKey, strings.Repeat("ab", 32))

	cfg, err := Load(writeConfig(t, "relay:\n  base_url: \"https://file.example.com\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Relay.BaseURL != "https://env-relay.example.com" {
		t.Errorf("Relay.BaseURL = %v, want env value", cfg.Relay.BaseURL)
	}
	key := cfg.SecretKey()
	if key == nil || key[0] != 0xab {
		t.Errorf("SecretKey() = %v, want decoded env key", key)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad relay url", func(c *Config) { c.Relay.BaseURL = "localhost:8025" }, true},
		{"unknown backend", func(c *Config) { c.Attachments.Backend = "ftp" }, true},
		{"s3 without bucket", func(c *Config) { c.Attachments.Backend = BackendS3 }, true},
		{"s3 complete", func(c *Config) {
			c.Attachments.Backend = BackendS3
			c.Attachments.S3 = S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s"}
		}, false},
		{"short secret key", func(c *Config) { c.SMTP.SecretKey = "abcd" }, true},
		{"redis without url", func(c *Config) { c.Cache.Backend = CacheRedis }, true},
		{"redis with url", func(c *Config) {
			c.Cache.Backend = CacheRedis
			c.Cache.RedisURL = "redis://localhost:6379/0"
		}, false},
		{"zero max files", func(c *Config) { c.Attachments.MaxFiles = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
