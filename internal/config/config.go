// Package config loads the service configuration from a YAML file and the
// environment, and validates it against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/namehist/internal/fetcher"
	"github.com/roach88/namehist/internal/freshness"
	"github.com/roach88/namehist/internal/store"
)

// EnvPrefix prefixes environment overrides: NAMEHIST_DATABASE_PATH, ...
const EnvPrefix = "NAMEHIST"

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "config.yaml"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	StaticFiles     string   `yaml:"static_files,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// ClientConfig configures the profile fetcher and the freshness policy.
type ClientConfig struct {
	BaseURL   string         `yaml:"base_url"`
	Timeout   Duration       `yaml:"timeout"`
	PoolSize  int            `yaml:"pool_size"`
	UserAgent string         `yaml:"user_agent,omitempty"`
	ProxyURL  string         `yaml:"proxy_url,omitempty"`
	RateLimit float64        `yaml:"rate_limit"`
	RateBurst int            `yaml:"rate_burst"`
	UseCache  UseCacheConfig `yaml:"use_cache"`
}

// UseCacheConfig holds the freshness TTLs.
type UseCacheConfig struct {
	Unchanged Duration `yaml:"unchanged"`
	Changed   Duration `yaml:"changed"`
}

// DatabaseConfig configures the history store.
type DatabaseConfig struct {
	Path           string   `yaml:"path"`
	BusyTimeout    Duration `yaml:"busy_timeout"`
	PoolTimeout    Duration `yaml:"pool_timeout"`
	MaxConnections int      `yaml:"max_connections"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         "127.0.0.1:6080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Client: ClientConfig{
			BaseURL:   fetcher.DefaultBaseURL,
			Timeout:   Duration(fetcher.DefaultTimeout),
			PoolSize:  fetcher.DefaultPoolSize,
			RateBurst: 1,
			UseCache: UseCacheConfig{
				Unchanged: Duration(freshness.DefaultUnchangedTTL),
				Changed:   Duration(freshness.DefaultChangedTTL),
			},
		},
		Database: DatabaseConfig{
			Path:           "data.db",
			BusyTimeout:    Duration(store.DefaultBusyTimeout),
			PoolTimeout:    Duration(store.DefaultPoolTimeout),
			MaxConnections: store.DefaultMaxConnections,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// keys lists every settable key; each is also bound to its environment variable.
var keys = []string{
	"server.address",
	"server.static_files",
	"server.shutdown_timeout",
	"client.base_url",
	"client.timeout",
	"client.pool_size",
	"client.user_agent",
	"client.proxy_url",
	"client.rate_limit",
	"client.rate_burst",
	"client.use_cache.unchanged",
	"client.use_cache.changed",
	"database.path",
	"database.busy_timeout",
	"database.pool_timeout",
	"database.max_connections",
	"log.level",
	"log.format",
}

// Load reads the configuration.
//
// An empty path looks for DefaultFileName in the working directory and falls
// back to defaults when it is absent. An explicit path must exist.
// Environment variables override file values; LOG_LEVEL is honoured as an
// alias of NAMEHIST_LOG_LEVEL. The result is validated before it is returned.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if err := v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return Config{}, fmt.Errorf("bind env log.level: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if _, err := os.Stat(DefaultFileName); err == nil {
		v.SetConfigFile(DefaultFileName)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", DefaultFileName, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("stat %s: %w", DefaultFileName, err)
	}

	if err := apply(v, &cfg); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// apply overrides cfg with every key viper has a value for.
func apply(v *viper.Viper, cfg *Config) error {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	var errs []error
	setDuration := func(key string, dst *Duration) {
		if !v.IsSet(key) {
			return
		}
		d, err := durationValue(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = Duration(d)
	}

	setString("server.address", &cfg.Server.Address)
	setString("server.static_files", &cfg.Server.StaticFiles)
	setDuration("server.shutdown_timeout", &cfg.Server.ShutdownTimeout)

	setString("client.base_url", &cfg.Client.BaseURL)
	setDuration("client.timeout", &cfg.Client.Timeout)
	setInt("client.pool_size", &cfg.Client.PoolSize)
	setString("client.user_agent", &cfg.Client.UserAgent)
	setString("client.proxy_url", &cfg.Client.ProxyURL)
	if v.IsSet("client.rate_limit") {
		cfg.Client.RateLimit = v.GetFloat64("client.rate_limit")
	}
	setInt("client.rate_burst", &cfg.Client.RateBurst)
	setDuration("client.use_cache.unchanged", &cfg.Client.UseCache.Unchanged)
	setDuration("client.use_cache.changed", &cfg.Client.UseCache.Changed)

	setString("database.path", &cfg.Database.Path)
	setDuration("database.busy_timeout", &cfg.Database.BusyTimeout)
	setDuration("database.pool_timeout", &cfg.Database.PoolTimeout)
	setInt("database.max_connections", &cfg.Database.MaxConnections)

	setString("log.level", &cfg.Log.Level)
	setString("log.format", &cfg.Log.Format)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	return errors.Join(errs...)
}

// StoreConfig returns the history store parameters.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Path:           c.Database.Path,
		BusyTimeout:    c.Database.BusyTimeout.Std(),
		PoolTimeout:    c.Database.PoolTimeout.Std(),
		MaxConnections: c.Database.MaxConnections,
	}
}

// FetcherConfig returns the profile fetcher parameters.
func (c Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		BaseURL:   c.Client.BaseURL,
		Timeout:   c.Client.Timeout.Std(),
		PoolSize:  c.Client.PoolSize,
		UserAgent: c.Client.UserAgent,
		ProxyURL:  c.Client.ProxyURL,
		RateLimit: c.Client.RateLimit,
		RateBurst: c.Client.RateBurst,
	}
}

// Policy returns the freshness policy.
func (c Config) Policy() freshness.Policy {
	return freshness.Policy{
		UnchangedTTL: c.Client.UseCache.Unchanged.Std(),
		ChangedTTL:   c.Client.UseCache.Changed.Std(),
	}
}
