package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Origin  OriginConfig
	Storage StorageConfig
	Worker  WorkerConfig
	Push    PushConfig
	Misc    MiscConfig
}

type ServerConfig struct {
	Port               int `validate:"min=1,max=65535"`
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutDownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins string
}

// OriginConfig points at the application the edge sits in front of.
type OriginConfig struct {
	URL     string `validate:"required,url"`
	Timeout time.Duration
}

type StorageConfig struct {
	Backend       string `validate:"oneof=leveldb memory redis"`
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"min=0"`
	RedisPrefix   string
	SweepInterval time.Duration
}

type WorkerConfig struct {
	ManifestPath        string `validate:"required"`
	WatchManifest       bool
	UpdateCheckEnabled  bool
	UpdateCheckInterval time.Duration
	NavigationPreload   bool
	NavigationTimeout   time.Duration
	APITimeout          time.Duration
	PrecacheConcurrency int `validate:"min=1"`
}

type PushConfig struct {
	Icon           string
	Tag            string
	Renotify       bool
	URL            string
	ClickMatchPath string
}

type MiscConfig struct {
	GinMode  string
	LogLevel string
}

// LoadConfig reads config.yaml from GO_PANTRY_CONFIG_PATH (default ./config),
// a .env file if present, and GO_PANTRY_* environment overrides.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Warnf("cannot load .env file: %v", err)
	}

	confPath := getEnvOrDefault("GO_PANTRY_CONFIG_PATH", "./config")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(confPath)

	setDefaults()

	// Environment variables like GO_PANTRY_SERVER_PORT override server.port
	viper.SetEnvPrefix("GO_PANTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		logger.WithComponent("config").Info("No config file found, using defaults and env vars")
	}

	port, err := getEnvOrViperPort("PORT", "server.port")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               port,
			ReadTimeout:        viper.GetDuration("server.read_timeout"),
			WriteTimeout:       viper.GetDuration("server.write_timeout"),
			IdleTimeout:        viper.GetDuration("server.idle_timeout"),
			ShutDownTimeout:    viper.GetDuration("server.shutdown_timeout"),
			RequestTimeout:     viper.GetDuration("server.request_timeout"),
			CORSAllowedOrigins: viper.GetString("server.cors_allowed_origins"),
		},
		Origin: OriginConfig{
			URL:     viper.GetString("origin.url"),
			Timeout: viper.GetDuration("origin.timeout"),
		},
		Storage: StorageConfig{
			Backend:       viper.GetString("storage.backend"),
			Path:          viper.GetString("storage.path"),
			RedisAddr:     viper.GetString("storage.redis_addr"),
			RedisPassword: viper.GetString("storage.redis_password"),
			RedisDB:       viper.GetInt("storage.redis_db"),
			RedisPrefix:   viper.GetString("storage.redis_prefix"),
			SweepInterval: viper.GetDuration("storage.sweep_interval"),
		},
		Worker: WorkerConfig{
			ManifestPath:        viper.GetString("worker.manifest_path"),
			WatchManifest:       viper.GetBool("worker.watch_manifest"),
			UpdateCheckEnabled:  viper.GetBool("worker.update_check_enabled"),
			UpdateCheckInterval: viper.GetDuration("worker.update_check_interval"),
			NavigationPreload:   viper.GetBool("worker.navigation_preload"),
			NavigationTimeout:   viper.GetDuration("worker.navigation_timeout"),
			APITimeout:          viper.GetDuration("worker.api_timeout"),
			PrecacheConcurrency: viper.GetInt("worker.precache_concurrency"),
		},
		Push: PushConfig{
			Icon:           viper.GetString("push.icon"),
			Tag:            viper.GetString("push.tag"),
			Renotify:       viper.GetBool("push.renotify"),
			URL:            viper.GetString("push.url"),
			ClickMatchPath: viper.GetString("push.click_match_path"),
		},
		Misc: MiscConfig{
			GinMode:  viper.GetString("misc.gin_mode"),
			LogLevel: viper.GetString("misc.log_level"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)
	viper.SetDefault("server.shutdown_timeout", 5*time.Second)
	viper.SetDefault("server.request_timeout", 2*time.Second)
	viper.SetDefault("server.cors_allowed_origins", "")

	viper.SetDefault("origin.url", "http://localhost:3000")
	viper.SetDefault("origin.timeout", 30*time.Second)

	viper.SetDefault("storage.backend", "leveldb")
	viper.SetDefault("storage.path", "./config/data/cache")
	viper.SetDefault("storage.redis_addr", "localhost:6379")
	viper.SetDefault("storage.redis_db", 0)
	viper.SetDefault("storage.redis_prefix", "go_pantry:")
	viper.SetDefault("storage.sweep_interval", 10*time.Minute)

	viper.SetDefault("worker.manifest_path", "./config/data/precache-manifest.json")
	viper.SetDefault("worker.watch_manifest", true)
	viper.SetDefault("worker.update_check_enabled", true)
	viper.SetDefault("worker.update_check_interval", time.Hour)
	viper.SetDefault("worker.navigation_preload", true)
	viper.SetDefault("worker.navigation_timeout", 3*time.Second)
	viper.SetDefault("worker.api_timeout", 10*time.Second)
	viper.SetDefault("worker.precache_concurrency", 8)

	viper.SetDefault("push.icon", "/icon-192x192.png")
	viper.SetDefault("push.tag", "expiry-reminder")
	viper.SetDefault("push.renotify", true)
	viper.SetDefault("push.url", "/dashboard")
	viper.SetDefault("push.click_match_path", "/dashboard")

	viper.SetDefault("misc.gin_mode", "release")
	viper.SetDefault("misc.log_level", "info")
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.ShutDownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be positive")
	}
	if c.Storage.Backend == "leveldb" && c.Storage.Path == "" {
		return errors.New("storage.path is required for the leveldb backend")
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisAddr == "" {
		return errors.New("storage.redis_addr is required for the redis backend")
	}
	if c.Storage.SweepInterval <= 0 {
		return errors.New("storage.sweep_interval must be positive")
	}
	if c.Worker.UpdateCheckEnabled && c.Worker.UpdateCheckInterval <= 0 {
		return errors.New("worker.update_check_interval must be positive when update checks are enabled")
	}
	if c.Worker.NavigationTimeout <= 0 || c.Worker.APITimeout <= 0 {
		return errors.New("worker network timeouts must be positive")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvOrViperPort prefers a plain env var such as PORT, set by most hosting platforms.
func getEnvOrViperPort(envKey, viperKey string) (int, error) {
	if v := os.Getenv(envKey); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", envKey, err)
		}
		return port, nil
	}
	return viper.GetInt(viperKey), nil
}
