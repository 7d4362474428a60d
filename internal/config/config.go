// Package config loads portjar settings from a YAML or JSONC file, with
// PORTJAR_* environment variables layered on top.
//
// The file format is chosen by extension: .json and .jsonc are read through
// github.com/tidwall/jsonc so comments and trailing commas are allowed,
// anything else is parsed as YAML. A missing file is not an error; the
// defaults apply.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/portjar/internal/jar"
	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/model"
)

// EnvConfigPath names the environment variable that overrides the config
// file location.
const EnvConfigPath = "PORTJAR_CONFIG"

// Store backends.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config is the full portjar configuration.
type Config struct {
	JarFile     string      `yaml:"jar_file" json:"jar_file"`         // path of the jar text file (file store)
	Store       string      `yaml:"store" json:"store"`               // "file" | "redis"
	BindHost    string      `yaml:"bind_host" json:"bind_host"`       // host probed and bound, "" = all interfaces
	PortMin     int         `yaml:"port_min" json:"port_min"`         // bottom of the scan range
	PortMax     int         `yaml:"port_max" json:"port_max"`         // top of the scan range
	MaxAttempts int         `yaml:"max_attempts" json:"max_attempts"` // 0 = unbounded
	ParseMode   string      `yaml:"parse_mode" json:"parse_mode"`     // "strict" | "lenient"
	LogLevel    string      `yaml:"log_level" json:"log_level"`       // "debug" | "info" | "warn" | "error"
	PrettyLog   bool        `yaml:"pretty_log" json:"pretty_log"`     // true => zap dev (color), false => JSON
	Listen      string      `yaml:"listen" json:"listen"`             // HTTP listen address for serve
	Redis       RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr        string   `yaml:"addr" json:"addr"`
	Username    string   `yaml:"username" json:"username"`
	Password    string   `yaml:"password" json:"password"`
	DB          int      `yaml:"db" json:"db"`
	Key         string   `yaml:"key" json:"key"`
	DialTimeout Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// Duration is a time.Duration that decodes from strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	return d.set(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		JarFile:     filepath.Join(defaultDir(), "jar"),
		Store:       StoreFile,
		PortMin:     jar.DefaultMinPort,
		PortMax:     jar.DefaultMaxPort,
		MaxAttempts: 0,
		ParseMode:   string(jar.ParseStrict),
		LogLevel:    "info",
		PrettyLog:   true,
		Listen:      "127.0.0.1:7575",
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Key:         "portjar:jar",
			DialTimeout: Duration(5 * time.Second),
		},
	}
}

// DefaultPath returns the config file location: $PORTJAR_CONFIG if set,
// otherwise config.yaml under the user config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(defaultDir(), "config.yaml")
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".portjar"
	}
	return filepath.Join(dir, "portjar")
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path means DefaultPath().
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(ExpandPath(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.JarFile = ExpandPath(cfg.JarFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// applyEnv layers PORTJAR_* variables over the file values.
func applyEnv(cfg *Config) error {
	cfg.JarFile = getenv("PORTJAR_JAR_FILE", cfg.JarFile)
	cfg.Store = getenv("PORTJAR_STORE", cfg.Store)
	cfg.BindHost = getenv("PORTJAR_BIND_HOST", cfg.BindHost)
	cfg.ParseMode = getenv("PORTJAR_PARSE_MODE", cfg.ParseMode)
	cfg.LogLevel = getenv("PORTJAR_LOG_LEVEL", cfg.LogLevel)
	cfg.Listen = getenv("PORTJAR_LISTEN", cfg.Listen)
	cfg.Redis.Addr = getenv("PORTJAR_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Username = getenv("PORTJAR_REDIS_USERNAME", cfg.Redis.Username)
	cfg.Redis.Password = getenv("PORTJAR_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.Key = getenv("PORTJAR_REDIS_KEY", cfg.Redis.Key)

	var err error
	if cfg.PortMin, err = getenvInt("PORTJAR_PORT_MIN", cfg.PortMin); err != nil {
		return err
	}
	if cfg.PortMax, err = getenvInt("PORTJAR_PORT_MAX", cfg.PortMax); err != nil {
		return err
	}
	if cfg.MaxAttempts, err = getenvInt("PORTJAR_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return err
	}
	if cfg.Redis.DB, err = getenvInt("PORTJAR_REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if v := os.Getenv("PORTJAR_PRETTY_LOG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean for PORTJAR_PRETTY_LOG: %q", v)
		}
		cfg.PrettyLog = b
	}
	return nil
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	if c.PortMin < 1 || c.PortMax > model.MaxPort || c.PortMin > c.PortMax {
		return fmt.Errorf("invalid port range %d-%d (must be within 1-%d)", c.PortMin, c.PortMax, model.MaxPort)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if _, err := jar.ParseParseMode(c.ParseMode); err != nil {
		return err
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	switch c.Store {
	case StoreFile:
		if c.JarFile == "" {
			return fmt.Errorf("jar_file must be set when store is %q", StoreFile)
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set when store is %q", StoreRedis)
		}
		if c.Redis.Key == "" {
			return fmt.Errorf("redis.key must be set when store is %q", StoreRedis)
		}
	default:
		return fmt.Errorf("invalid store %q (valid: file, redis)", c.Store)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Redis.Password != "" {
		out.Redis.Password = "***REDACTED***"
	}
	return out
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, v)
	}
	return i, nil
}
