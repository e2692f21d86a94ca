// Package config loads daemon settings with viper: built-in defaults, then an
// optional YAML file, then DASHHUB_* environment variables, then CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment override, e.g. DASHHUB_HTTP_ADDR.
const EnvPrefix = "DASHHUB"

// Defaults.
const (
	DefaultQuietPeriodMs = 300
	DefaultKeepAliveMs   = 30000
	DefaultStreamBuffer  = 32
	DefaultHTTPAddr      = "127.0.0.1:31415"
	DefaultStoreDriver   = DriverSQLite
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBbolt  = "bbolt"
)

// Config is the resolved daemon configuration.
type Config struct {
	DataDir       string      `mapstructure:"dataDir"`
	QuietPeriodMs int         `mapstructure:"quietPeriodMs"`
	KeepAliveMs   int         `mapstructure:"keepAliveMs"`
	StreamBuffer  int         `mapstructure:"streamBuffer"`
	HTTP          HTTPConfig  `mapstructure:"http"`
	Store         StoreConfig `mapstructure:"store"`
	Log           LogConfig   `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | bbolt
	Path   string `mapstructure:"path"`   // empty: derived from DataDir
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

// QuietPeriod is the debounce window for .git changes.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.QuietPeriodMs) * time.Millisecond
}

// KeepAlive is the interval between SSE keep-alive comments.
func (c *Config) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveMs) * time.Millisecond
}

// FlagKeys maps CLI flag names to config keys. Flags present in the set
// passed to Load override every other source when set explicitly.
var FlagKeys = map[string]string{
	"data-dir":     "dataDir",
	"quiet-period": "quietPeriodMs",
	"keep-alive":   "keepAliveMs",
	"addr":         "http.addr",
	"store":        "store.driver",
	"store-path":   "store.path",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// DefaultDataDir is where the dashboard keeps its database, next to the
// Claude data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dashhub"
	}
	return filepath.Join(home, ".claude", "data")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataDir", DefaultDataDir())
	v.SetDefault("quietPeriodMs", DefaultQuietPeriodMs)
	v.SetDefault("keepAliveMs", DefaultKeepAliveMs)
	v.SetDefault("streamBuffer", DefaultStreamBuffer)
	v.SetDefault("http.addr", DefaultHTTPAddr)
	v.SetDefault("store.driver", DefaultStoreDriver)
	v.SetDefault("store.path", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}

// Load resolves the configuration. file may be empty. flags may be nil.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("dataDir must not be empty"))
	}
	if c.QuietPeriodMs <= 0 {
		errs = append(errs, fmt.Errorf("quietPeriodMs must be positive, got %d", c.QuietPeriodMs))
	}
	if c.KeepAliveMs <= 0 {
		errs = append(errs, fmt.Errorf("keepAliveMs must be positive, got %d", c.KeepAliveMs))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverBbolt:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverBbolt, c.Store.Driver))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
