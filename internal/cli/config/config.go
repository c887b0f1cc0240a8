package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file base name looked up in the working directory
const FileName = "ddmark"

// EnvPrefix prefixes environment overrides: DDMARK_SERVER_PORT=9000
const EnvPrefix = "DDMARK"

// Config represents the ddmark configuration
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Render   RenderConfig   `mapstructure:"render" yaml:"render"`
}

// LogConfig selects the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host"`
	Port            int             `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig throttles /api/v1 per client address. Zero requests
// disables it.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" yaml:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
	// Backend is "memory" or "redis"; redis shares the cache's redis_url
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// Enabled reports whether requests are throttled
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig selects the rendered-diagram cache
type CacheConfig struct {
	// Backend is "memory", "redis" or "none"
	Backend string `mapstructure:"backend" yaml:"backend"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxItems int           `mapstructure:"max_items" yaml:"max_items"`
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
}

// DatabaseConfig points at the table design documents are read from. An
// empty URL disables the store.
type DatabaseConfig struct {
	// Driver is "pgx", "postgres" or "sqlite3"
	Driver string `mapstructure:"driver" yaml:"driver"`
	URL    string `mapstructure:"url" yaml:"url"`
	Table  string `mapstructure:"table" yaml:"table"`
}

// Enabled reports whether a store is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// WatchConfig configures the file watcher
type WatchConfig struct {
	Paths    []string      `mapstructure:"paths" yaml:"paths"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore"`
}

// RenderConfig configures conversions
type RenderConfig struct {
	// DefaultKind is used when a document's kind cannot be inferred from
	// the command line; "auto" detects it from the headings.
	DefaultKind   string `mapstructure:"default_kind" yaml:"default_kind"`
	MaxInputBytes int    `mapstructure:"max_input_bytes" yaml:"max_input_bytes"`
	OutputDir     string `mapstructure:"output_dir" yaml:"output_dir"`
}

var (
	validBackends = []string{"memory", "redis", "none"}
	validLimiters = []string{"memory", "redis"}
	validDrivers  = []string{"pgx", "postgres", "sqlite3"}
	validKinds    = []string{"auto", "class", "er", "flow", "robustness"}
	validLevels   = []string{"debug", "info", "warn", "error"}
	tableName     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// setDefaults registers every default on v
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit.requests", 0)
	v.SetDefault("server.rate_limit.window", time.Minute)
	v.SetDefault("server.rate_limit.backend", "memory")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.prefix", "ddmark:")

	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.url", "")
	v.SetDefault("database.table", "design_documents")

	v.SetDefault("watch.paths", []string{"."})
	v.SetDefault("watch.debounce", 200*time.Millisecond)
	v.SetDefault("watch.ignore", []string{".git", "node_modules"})

	v.SetDefault("render.default_kind", "auto")
	v.SetDefault("render.max_input_bytes", 1<<20)
	v.SetDefault("render.output_dir", "diagrams")
}

// Load loads the configuration from ddmark.yml or ddmark.yaml in the working
// directory, applying DDMARK_* environment overrides
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads the configuration from path, or from the working directory
// when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// FindConfigFile walks up from the working directory looking for
// ddmark.yml or ddmark.yaml
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		for _, ext := range []string{".yml", ".yaml"} {
			candidate := filepath.Join(dir, FileName+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s.yaml found in %s or any parent directory", FileName, dir)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if !contains(validLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("log.level must be one of %v, got: %s", validLevels, cfg.Log.Level)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got: %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.RateLimit.Enabled() {
		if cfg.Server.RateLimit.Window <= 0 {
			return fmt.Errorf("server.rate_limit.window must be positive, got: %s", cfg.Server.RateLimit.Window)
		}
		if !contains(validLimiters, cfg.Server.RateLimit.Backend) {
			return fmt.Errorf("server.rate_limit.backend must be one of %v, got: %s", validLimiters, cfg.Server.RateLimit.Backend)
		}
		if cfg.Server.RateLimit.Backend == "redis" && cfg.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when server.rate_limit.backend is redis")
		}
	}
	if !contains(validBackends, cfg.Cache.Backend) {
		return fmt.Errorf("cache.backend must be one of %v, got: %s", validBackends, cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache.backend is redis")
	}
	if cfg.Database.Enabled() {
		if !contains(validDrivers, cfg.Database.Driver) {
			return fmt.Errorf("database.driver must be one of %v, got: %s", validDrivers, cfg.Database.Driver)
		}
		if !tableName.MatchString(cfg.Database.Table) {
			return fmt.Errorf("database.table must be a plain SQL identifier, got: %s", cfg.Database.Table)
		}
	}
	if !contains(validKinds, cfg.Render.DefaultKind) {
		return fmt.Errorf("render.default_kind must be one of %v, got: %s", validKinds, cfg.Render.DefaultKind)
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got: %s", cfg.Watch.Debounce)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
