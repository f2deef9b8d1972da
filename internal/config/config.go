// Package config loads the settings of the flowline binary: defaults, then
// an optional YAML file, then FLOWLINE_* environment variables. Command line
// flags are applied last by the caller.
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

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWLINE_"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Engine  EngineConfig  `yaml:"engine"`
	Tools   ToolsConfig   `yaml:"tools"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes caps the size of a request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
	Redis   RedisConfig  `yaml:"redis"`

	// Redact lists regular expressions of state keys masked before storage.
	Redact []string `yaml:"redact"`
	// EncryptionKey is a base64 AES-256 key; run data is stored encrypted when set.
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys are older base64 keys still accepted for decryption.
	FallbackKeys []string `yaml:"fallback_keys"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	// Lock serialises run writes across processes sharing the instance.
	Lock bool `yaml:"lock"`
}

type EngineConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

// ToolsConfig points at a file of external process tools.
type ToolsConfig struct {
	File    string        `yaml:"file"`
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Backend: BackendMemory,
			SQLite:  SQLiteConfig{Path: "flowline.db"},
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "flowline:", Lock: true},
		},
		Engine:  EngineConfig{MaxSteps: 1000},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path (skipped when empty) over the defaults and applies
// environment overrides from environ (typically os.Environ()).
func Load(path string, environ []string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(environ); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that cannot be caught by the YAML decoder.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLite.Path == "" {
		errs = append(errs, errors.New("store.sqlite.path is required"))
	}
	if c.Store.Backend == BackendRedis && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("store.redis.addr is required"))
	}
	if c.Server.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be >= 1, got %d", c.Server.MaxBodyBytes))
	}
	if c.Tools.Timeout < 0 {
		errs = append(errs, fmt.Errorf("tools.timeout must not be negative, got %s", c.Tools.Timeout))
	}
	if c.Engine.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("engine.max_steps must be >= 1, got %d", c.Engine.MaxSteps))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnv(environ []string) error {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[strings.TrimPrefix(k, EnvPrefix)] = v
		}
	}

	var errs []error
	str := func(key string, dst *string) {
		if v, ok := env[key]; ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := env[key]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	size := func(key string, dst *int64) {
		if v, ok := env[key]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := env[key]; ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := env[key]; ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	dur("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	size("SERVER_MAX_BODY_BYTES", &c.Server.MaxBodyBytes)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_SQLITE_PATH", &c.Store.SQLite.Path)
	str("STORE_REDIS_ADDR", &c.Store.Redis.Addr)
	str("STORE_REDIS_PASSWORD", &c.Store.Redis.Password)
	num("STORE_REDIS_DB", &c.Store.Redis.DB)
	str("STORE_REDIS_PREFIX", &c.Store.Redis.Prefix)
	dur("STORE_REDIS_TTL", &c.Store.Redis.TTL)
	flag("STORE_REDIS_LOCK", &c.Store.Redis.Lock)
	str("STORE_ENCRYPTION_KEY", &c.Store.EncryptionKey)
	if v, ok := env["STORE_REDACT"]; ok {
		c.Store.Redact = splitList(v)
	}
	if v, ok := env["STORE_FALLBACK_KEYS"]; ok {
		c.Store.FallbackKeys = splitList(v)
	}
	num("ENGINE_MAX_STEPS", &c.Engine.MaxSteps)
	str("TOOLS_FILE", &c.Tools.File)
	str("TOOLS_DIR", &c.Tools.Dir)
	dur("TOOLS_TIMEOUT", &c.Tools.Timeout)
	flag("METRICS_ENABLED", &c.Metrics.Enabled)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
