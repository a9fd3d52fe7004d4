package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "reposit.db", cfg.Database.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Cache.Backend)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := `
database:
  driver: postgres
  dsn: postgres://localhost/shop
cache:
  backend: redis
  addr: localhost:6379
  ttl: 30s
  prefix: "shop:"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/shop", cfg.Descriptor().DSN)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.CacheSettings().DefaultTTL)
	assert.Equal(t, "shop:", cfg.RedisConfig().Config.Prefix)
	assert.Equal(t, "localhost:6379", cfg.RedisConfig().Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("REPOSIT_DATABASE_DSN", "file:env.db")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "file:env.db", cfg.Database.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("database:\n  driver: oracle\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite3", DSN: "x.db"},
			Log:      LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "cache.addr"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }, "cache.ttl"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Database: DatabaseConfig{Driver: "mysql", DSN: "user:pw@tcp(localhost:3306)/shop"},
		Cache:    CacheConfig{Backend: "memory", TTL: time.Minute},
		Log:      LogConfig{Level: "warn"},
	}

	path, err := Save(dir, cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Database, loaded.Database)
	assert.Equal(t, "memory", loaded.Cache.Backend)
	assert.Equal(t, time.Minute, loaded.Cache.TTL)
}

func TestLogger_Level(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "warn"}}
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
