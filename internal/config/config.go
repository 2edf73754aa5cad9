// Package config loads the elasticpool command's settings from defaults, a
// YAML file, ELASTICPOOL_* environment variables and flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vnykmshr/elasticpool/internal/logging"
	poolerrors "github.com/vnykmshr/elasticpool/pkg/common/errors"
	"github.com/vnykmshr/elasticpool/pkg/common/validation"
	"github.com/vnykmshr/elasticpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/elasticpool/pkg/streaming/writer"
)

// EnvPrefix prefixes every environment variable the command reads, e.g.
// ELASTICPOOL_POOL_MAX_WORKERS for pool.max_workers.
const EnvPrefix = "ELASTICPOOL"

// Config is the complete elasticpool configuration.
type Config struct {
	Pool    PoolConfig    `mapstructure:"pool" yaml:"pool"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
}

// PoolConfig sizes the worker pool and paces its manager.
type PoolConfig struct {
	Name            string        `mapstructure:"name" yaml:"name"`
	MaxWorkers      int           `mapstructure:"max_workers" yaml:"max_workers"`
	MinWorkers      int           `mapstructure:"min_workers" yaml:"min_workers"`
	QueueCapacity   int           `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	ScaleStep       int           `mapstructure:"scale_step" yaml:"scale_step"`
	ManagerInterval time.Duration `mapstructure:"manager_interval" yaml:"manager_interval"`
	// ManagerSchedule is a cron spec such as "@every 5s" or "*/10 * * * * *".
	// When set it overrides ManagerInterval.
	ManagerSchedule string `mapstructure:"manager_schedule" yaml:"manager_schedule"`
}

// LogConfig controls the command's structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File appends logs to a file instead of stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables metrics.
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// RedisConfig controls the shared status board.
type RedisConfig struct {
	// Addr is the Redis address. Empty disables the status board.
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Key      string        `mapstructure:"key" yaml:"key"`
	KeyTTL   time.Duration `mapstructure:"key_ttl" yaml:"key_ttl"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OutputConfig tunes the buffered writer that search results go through.
type OutputConfig struct {
	BufferSize    int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	MaxRetries    int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	out := writer.DefaultConfig()
	return &Config{
		Pool: PoolConfig{
			Name:            "search",
			MaxWorkers:      30,
			MinWorkers:      3,
			QueueCapacity:   100,
			ScaleStep:       workerpool.DefaultScaleStep,
			ManagerInterval: workerpool.DefaultManagerInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Metrics: MetricsConfig{
			Namespace: "elasticpool",
		},
		Redis: RedisConfig{
			Key:     "elasticpool",
			KeyTTL:  time.Minute,
			Timeout: 500 * time.Millisecond,
		},
		Output: OutputConfig{
			BufferSize:    out.BufferSize,
			FlushInterval: out.FlushInterval,
			MaxRetries:    out.MaxRetries,
		},
	}
}

// SetDefaults registers every default with viper so that keys resolve even
// without a config file.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("pool.name", defaults.Pool.Name)
	viper.SetDefault("pool.max_workers", defaults.Pool.MaxWorkers)
	viper.SetDefault("pool.min_workers", defaults.Pool.MinWorkers)
	viper.SetDefault("pool.queue_capacity", defaults.Pool.QueueCapacity)
	viper.SetDefault("pool.scale_step", defaults.Pool.ScaleStep)
	viper.SetDefault("pool.manager_interval", defaults.Pool.ManagerInterval)
	viper.SetDefault("pool.manager_schedule", defaults.Pool.ManagerSchedule)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.format", defaults.Log.Format)
	viper.SetDefault("log.file", defaults.Log.File)

	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
	viper.SetDefault("metrics.namespace", defaults.Metrics.Namespace)

	viper.SetDefault("redis.addr", defaults.Redis.Addr)
	viper.SetDefault("redis.password", defaults.Redis.Password)
	viper.SetDefault("redis.db", defaults.Redis.DB)
	viper.SetDefault("redis.key", defaults.Redis.Key)
	viper.SetDefault("redis.key_ttl", defaults.Redis.KeyTTL)
	viper.SetDefault("redis.timeout", defaults.Redis.Timeout)

	viper.SetDefault("output.buffer_size", defaults.Output.BufferSize)
	viper.SetDefault("output.flush_interval", defaults.Output.FlushInterval)
	viper.SetDefault("output.max_retries", defaults.Output.MaxRetries)
}

// Load reads the configuration from viper into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid value, joined into one error. Each part
// unwraps to a *errors.ValidationError.
func (c *Config) Validate() error {
	var errs []error

	// Pool sizing is validated by the pool itself.
	if _, err := c.Pool.WorkerPool(nil); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Log.Level)) {
		errs = append(errs, poolerrors.NewValidationError("config", "log.level", c.Log.Level, "unknown level").
			WithHint("one of "+strings.ToLower(strings.Join(logging.ValidLevels(), ", "))))
	}
	if !slices.Contains(logging.ValidFormats(), strings.ToLower(c.Log.Format)) {
		errs = append(errs, poolerrors.NewValidationError("config", "log.format", c.Log.Format, "unknown format").
			WithHint("one of "+strings.Join(logging.ValidFormats(), ", ")))
	}

	if c.Redis.Addr != "" {
		errs = append(errs, validation.ValidateNotEmpty("config", "redis.key", c.Redis.Key))
		errs = append(errs, validation.ValidatePositiveDuration("config", "redis.key_ttl", c.Redis.KeyTTL))
		errs = append(errs, validation.ValidatePositiveDuration("config", "redis.timeout", c.Redis.Timeout))
	}

	errs = append(errs, validation.ValidatePositive("config", "output.buffer_size", c.Output.BufferSize))
	errs = append(errs, validation.ValidateNonNegative("config", "output.max_retries", c.Output.MaxRetries))
	if c.Output.FlushInterval < 0 {
		errs = append(errs, poolerrors.NewValidationError("config", "output.flush_interval", c.Output.FlushInterval, "must not be negative"))
	}

	return errors.Join(errs...)
}

// WorkerPool converts the pool section into a workerpool.Config, parsing
// ManagerSchedule if set.
func (p PoolConfig) WorkerPool(logger *slog.Logger) (workerpool.Config, error) {
	cfg := workerpool.Config{
		Name:            p.Name,
		MaxWorkers:      p.MaxWorkers,
		MinWorkers:      p.MinWorkers,
		QueueCapacity:   p.QueueCapacity,
		ScaleStep:       p.ScaleStep,
		ManagerInterval: p.ManagerInterval,
		Logger:          logger,
	}
	if p.ManagerSchedule != "" {
		schedule, err := workerpool.ParseSchedule(p.ManagerSchedule)
		if err != nil {
			return workerpool.Config{}, err
		}
		cfg.ManagerSchedule = schedule
	}
	if err := cfg.Validate(); err != nil {
		return workerpool.Config{}, err
	}
	return cfg, nil
}

// Writer converts the output section into a writer.Config.
func (o OutputConfig) Writer(name string) writer.Config {
	cfg := writer.DefaultConfig()
	cfg.Name = name
	cfg.BufferSize = o.BufferSize
	cfg.FlushInterval = o.FlushInterval
	cfg.MaxRetries = o.MaxRetries
	return cfg
}

// Dir returns the directory holding the config file.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "elasticpool")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".elasticpool"
	}
	return filepath.Join(home, ".config", "elasticpool")
}

// File returns the path of the default config file.
func File() string {
	return filepath.Join(Dir(), "config.yaml")
}
