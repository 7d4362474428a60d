package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.PortMin, cfg.PortMin)
	assert.Equal(t, def.PortMax, cfg.PortMax)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "strict", cfg.ParseMode)
	assert.Equal(t, Duration(5*time.Second), cfg.Redis.DialTimeout)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
jar_file: /tmp/ports.jar
bind_host: 127.0.0.1
port_min: 20000
port_max: 20100
max_attempts: 50
parse_mode: lenient
log_level: debug
pretty_log: false
redis:
  addr: redis:6379
  db: 2
  dial_timeout: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ports.jar", cfg.JarFile)
	assert.Equal(t, "127.0.0.1", cfg.BindHost)
	assert.Equal(t, 20000, cfg.PortMin)
	assert.Equal(t, 20100, cfg.PortMax)
	assert.Equal(t, 50, cfg.MaxAttempts)
	assert.Equal(t, "lenient", cfg.ParseMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.PrettyLog)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, Duration(2*time.Second), cfg.Redis.DialTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, "portjar:jar", cfg.Redis.Key)
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "config.jsonc", `{
  // comments are allowed
  "store": "redis",
  "port_min": 30000,
  "port_max": 30010,
  "redis": {
    "addr": "localhost:6380",
    "key": "dev:jar", /* trailing comma below */
  },
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, 30000, cfg.PortMin)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "dev:jar", cfg.Redis.Key)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "port_min: 20000\nport_max: 20100\n")
	t.Setenv("PORTJAR_PORT_MIN", "20050")
	t.Setenv("PORTJAR_STORE", "redis")
	t.Setenv("PORTJAR_PRETTY_LOG", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20050, cfg.PortMin)
	assert.Equal(t, 20100, cfg.PortMax)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.False(t, cfg.PrettyLog)
}

func TestLoad_EnvSelectsPath(t *testing.T) {
	path := writeFile(t, "custom.yaml", "port_min: 40000\nport_max: 40001\n")
	t.Setenv(EnvConfigPath, path)

	assert.Equal(t, path, DefaultPath())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 40000, cfg.PortMin)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		env     map[string]string
	}{
		{name: "bad yaml", file: "c.yaml", content: "port_min: [1,2"},
		{name: "bad json", file: "c.json", content: `{"port_min": }`},
		{name: "bad duration", file: "c.yaml", content: "redis:\n  dial_timeout: soon\n"},
		{name: "inverted range", file: "c.yaml", content: "port_min: 9000\nport_max: 8000\n"},
		{name: "bad env int", file: "c.yaml", env: map[string]string{"PORTJAR_PORT_MAX": "lots"}},
		{name: "bad env bool", file: "c.yaml", env: map[string]string{"PORTJAR_PRETTY_LOG": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "min zero", mutate: func(c *Config) { c.PortMin = 0 }, wantErr: true},
		{name: "max too high", mutate: func(c *Config) { c.PortMax = 70000 }, wantErr: true},
		{name: "negative attempts", mutate: func(c *Config) { c.MaxAttempts = -1 }, wantErr: true},
		{name: "bad parse mode", mutate: func(c *Config) { c.ParseMode = "loose" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "bad store", mutate: func(c *Config) { c.Store = "s3" }, wantErr: true},
		{name: "file store without path", mutate: func(c *Config) { c.JarFile = "" }, wantErr: true},
		{name: "redis store without addr", mutate: func(c *Config) { c.Store = StoreRedis; c.Redis.Addr = "" }, wantErr: true},
		{name: "redis store without key", mutate: func(c *Config) { c.Store = StoreRedis; c.Redis.Key = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Redis.Password = "hunter2"

	red := cfg.Redacted()
	assert.Equal(t, "***REDACTED***", red.Redis.Password)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "ports.jar"), ExpandPath("~/ports.jar"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
	assert.Equal(t, "~user/x", ExpandPath("~user/x"))
}
