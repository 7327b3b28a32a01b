package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/coffersTech/nanofilter/internal/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix is prepended to every environment override, e.g.
// NANOFILTER_ENGINE_WORKERS sets engine.workers.
const EnvPrefix = "NANOFILTER"

// Config is the server configuration.
type Config struct {
	Listen       string         `mapstructure:"listen"`
	DataDir      string         `mapstructure:"data_dir"`
	MaxBodyBytes int64          `mapstructure:"max_body_bytes"`
	Log          LogConfig      `mapstructure:"log"`
	Auth         AuthConfig     `mapstructure:"auth"`
	Engine       EngineConfig   `mapstructure:"engine"`
	Snapshot     SnapshotConfig `mapstructure:"snapshot"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig lists bcrypt hashes of accepted bearer tokens. Auth is off
// when the list is empty.
type AuthConfig struct {
	Tokens []string `mapstructure:"tokens"`
}

type EngineConfig struct {
	Workers       int           `mapstructure:"workers"`
	ShardSize     int           `mapstructure:"shard_size"`
	FlushRows     int           `mapstructure:"flush_rows"`
	MaxTableMB    int64         `mapstructure:"max_table_mb"`
	CacheSize     int           `mapstructure:"cache_size"`
	Retention     time.Duration `mapstructure:"retention"`
	CleanInterval time.Duration `mapstructure:"clean_interval"`
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
}

type SnapshotConfig struct {
	CompressionLevel int `mapstructure:"compression_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8088")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("max_body_bytes", 32<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("auth.tokens", []string{})
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.shard_size", 2048)
	v.SetDefault("engine.flush_rows", 100000)
	v.SetDefault("engine.max_table_mb", 64)
	v.SetDefault("engine.cache_size", 1024)
	v.SetDefault("engine.retention", 7*24*time.Hour)
	v.SetDefault("engine.clean_interval", time.Hour)
	v.SetDefault("engine.sync_interval", time.Second)
	v.SetDefault("snapshot.compression_level", 3)
}

// Load reads configuration from defaults, the optional file at path,
// NANOFILTER_* environment variables and flags, in increasing precedence.
// Flags are matched to keys by flagKey; unknown flags are ignored.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKey(v, f.Name)
			if !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// flagKey maps a flag name to a config key: data-dir is data_dir and
// engine-flush-rows is engine.flush_rows.
func flagKey(v *viper.Viper, name string) (string, bool) {
	flat := strings.ReplaceAll(name, "-", "_")
	if isKnown(v, flat) {
		return flat, true
	}
	section, rest, found := strings.Cut(name, "-")
	if !found {
		return "", false
	}
	nested := section + "." + strings.ReplaceAll(rest, "-", "_")
	return nested, isKnown(v, nested)
}

func isKnown(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if _, err := logging.New(logging.Config{Level: c.Log.Level, Format: c.Log.Format}, io.Discard); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	for i, h := range c.Auth.Tokens {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			errs = append(errs, fmt.Errorf("auth.tokens[%d] is not a bcrypt hash: %w", i, err))
		}
	}
	if c.Engine.Workers < 0 {
		errs = append(errs, fmt.Errorf("engine.workers must not be negative, got %d", c.Engine.Workers))
	}
	if c.Engine.ShardSize < 0 {
		errs = append(errs, fmt.Errorf("engine.shard_size must not be negative, got %d", c.Engine.ShardSize))
	}
	if c.Engine.FlushRows < 0 {
		errs = append(errs, fmt.Errorf("engine.flush_rows must not be negative, got %d", c.Engine.FlushRows))
	}
	if c.Engine.MaxTableMB <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_table_mb must be positive, got %d", c.Engine.MaxTableMB))
	}
	if c.Engine.Retention < 0 {
		errs = append(errs, fmt.Errorf("engine.retention must not be negative, got %v", c.Engine.Retention))
	}
	if c.Engine.CleanInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine.clean_interval must be positive, got %v", c.Engine.CleanInterval))
	}
	if c.Engine.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine.sync_interval must be positive, got %v", c.Engine.SyncInterval))
	}
	if l := c.Snapshot.CompressionLevel; l < 0 || l > 22 {
		errs = append(errs, fmt.Errorf("snapshot.compression_level must be in 0..22, got %d", l))
	}
	return errors.Join(errs...)
}
