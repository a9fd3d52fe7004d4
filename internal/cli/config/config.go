package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/reposit-go/reposit/pkg/repository"
)

// FileName is the config file looked up in the working directory
const FileName = "reposit.yml"

// Config represents the reposit CLI configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig names the driver and connection string
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// CacheConfig configures cached reads. An empty Backend disables caching.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend" yaml:"backend,omitempty"`
	Addr     string        `mapstructure:"addr" yaml:"addr,omitempty"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db,omitempty"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl,omitempty"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

var drivers = []string{"sqlite3", "sqlite", "postgres", "pgx", "mysql"}

// Drivers returns the supported driver names
func Drivers() []string {
	return append([]string(nil), drivers...)
}

// Load loads the configuration from reposit.yml in dir, falling back to
// defaults. REPOSIT_* environment variables override file values.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "reposit.db")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "reposit:")
	v.SetDefault("log.level", "info")

	v.SetConfigName("reposit")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("REPOSIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to reposit.yml in dir
func Save(dir string, cfg *Config) (string, error) {
	if err := Validate(cfg); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Validate checks the driver and cache settings
func Validate(cfg *Config) error {
	known := false
	for _, d := range drivers {
		if cfg.Database.Driver == d {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("database.driver must be one of %s, got %q", strings.Join(drivers, ", "), cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}

	switch cfg.Cache.Backend {
	case "", "memory":
	case "redis":
		if cfg.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Descriptor returns the store descriptor of cfg
func (c *Config) Descriptor() repository.Descriptor {
	return repository.Descriptor{Driver: c.Database.Driver, DSN: c.Database.DSN}
}

// Logger builds a console logger at the configured level
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	return zc.Build()
}

// CacheSettings returns the cache settings shared by every backend
func (c *Config) CacheSettings() repository.CacheConfig {
	cc := repository.DefaultCacheConfig()
	if c.Cache.TTL > 0 {
		cc.DefaultTTL = c.Cache.TTL
	}
	if c.Cache.Prefix != "" {
		cc.Prefix = c.Cache.Prefix
	}
	return cc
}

// RedisConfig returns the redis connection settings
func (c *Config) RedisConfig() repository.RedisConfig {
	return repository.RedisConfig{
		Addr:     c.Cache.Addr,
		Password: c.Cache.Password,
		DB:       c.Cache.DB,
		Config:   c.CacheSettings(),
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
