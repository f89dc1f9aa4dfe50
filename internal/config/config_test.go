package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutDownTimeout: 5 * time.Second,
			RequestTimeout:  1000 * time.Millisecond,
		},
		Origin:  OriginConfig{URL: "http://localhost:3000", Timeout: 30 * time.Second},
		Storage: StorageConfig{Backend: "leveldb", Path: "/tmp/cache", SweepInterval: time.Minute},
		Worker: WorkerConfig{
			ManifestPath:        "/tmp/precache-manifest.json",
			UpdateCheckEnabled:  true,
			UpdateCheckInterval: time.Hour,
			NavigationTimeout:   3 * time.Second,
			APITimeout:          10 * time.Second,
			PrecacheConcurrency: 4,
		},
		Misc: MiscConfig{GinMode: "release", LogLevel: "info"},
	}
}

func TestConfig_Validate_Valid(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestConfig_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"too high port", func(c *Config) { c.Server.Port = 65536 }},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutDownTimeout = 0 }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"missing origin", func(c *Config) { c.Origin.URL = "" }},
		{"relative origin", func(c *Config) { c.Origin.URL = "localhost" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"leveldb without path", func(c *Config) { c.Storage.Path = "" }},
		{"redis without addr", func(c *Config) {
			c.Storage.Backend = "redis"
			c.Storage.RedisAddr = ""
		}},
		{"zero sweep interval", func(c *Config) { c.Storage.SweepInterval = 0 }},
		{"missing manifest", func(c *Config) { c.Worker.ManifestPath = "" }},
		{"zero update interval", func(c *Config) { c.Worker.UpdateCheckInterval = 0 }},
		{"zero navigation timeout", func(c *Config) { c.Worker.NavigationTimeout = 0 }},
		{"zero concurrency", func(c *Config) { c.Worker.PrecacheConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Validate_UpdateIntervalIgnoredWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.UpdateCheckEnabled = false
	cfg.Worker.UpdateCheckInterval = 0
	if err := cfg.validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Setenv("GO_PANTRY_CONFIG_PATH", t.TempDir())
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "leveldb" {
		t.Errorf("expected leveldb backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Worker.NavigationTimeout != 3*time.Second || cfg.Worker.APITimeout != 10*time.Second {
		t.Errorf("unexpected network-first timeouts: %v / %v", cfg.Worker.NavigationTimeout, cfg.Worker.APITimeout)
	}
	if cfg.Push.Tag != "expiry-reminder" || !cfg.Push.Renotify || cfg.Push.URL != "/dashboard" {
		t.Errorf("unexpected push defaults: %+v", cfg.Push)
	}
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	content := `server:
  port: 9000
origin:
  url: http://pantry.internal:3000
storage:
  backend: memory
worker:
  navigation_timeout: 5s
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("GO_PANTRY_CONFIG_PATH", dir)
	t.Setenv("GO_PANTRY_WORKER_API_TIMEOUT", "15s")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000 from file, got %d", cfg.Server.Port)
	}
	if cfg.Origin.URL != "http://pantry.internal:3000" {
		t.Errorf("unexpected origin %s", cfg.Origin.URL)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Worker.NavigationTimeout != 5*time.Second {
		t.Errorf("expected 5s navigation timeout, got %v", cfg.Worker.NavigationTimeout)
	}
	if cfg.Worker.APITimeout != 15*time.Second {
		t.Errorf("expected env override 15s, got %v", cfg.Worker.APITimeout)
	}
}

func TestLoadConfig_PortEnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("GO_PANTRY_CONFIG_PATH", t.TempDir())
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	viper.Reset()
	t.Setenv("GO_PANTRY_CONFIG_PATH", t.TempDir())
	t.Setenv("GO_PANTRY_STORAGE_BACKEND", "cassandra")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for unknown storage backend")
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "custom_value")

	if result := getEnvOrDefault("TEST_ENV_VAR", "default_value"); result != "custom_value" {
		t.Errorf("expected 'custom_value', got '%s'", result)
	}
	if result := getEnvOrDefault("NONEXISTENT_VAR", "default_value"); result != "default_value" {
		t.Errorf("expected 'default_value', got '%s'", result)
	}
}

func TestGetEnvOrViperPort(t *testing.T) {
	viper.Reset()
	viper.Set("server.port", 8181)

	t.Setenv("TEST_PORT", "9090")
	port, err := getEnvOrViperPort("TEST_PORT", "server.port")
	if err != nil || port != 9090 {
		t.Errorf("expected 9090, got %d (%v)", port, err)
	}

	port, err = getEnvOrViperPort("NONEXISTENT_PORT_VAR_12345", "server.port")
	if err != nil || port != 8181 {
		t.Errorf("expected viper value 8181, got %d (%v)", port, err)
	}

	t.Setenv("TEST_PORT_INVALID", "not_a_number")
	if _, err := getEnvOrViperPort("TEST_PORT_INVALID", "server.port"); err == nil {
		t.Error("expected error for invalid port")
	}
}
