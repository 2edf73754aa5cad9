// Package cmd implements the elasticpool command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vnykmshr/elasticpool/internal/config"
)

// Execute runs the root command with ctx, which commands treat as the
// process lifetime.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-file":         "log.file",
	"metrics-addr":     "metrics.addr",
	"redis-addr":       "redis.addr",
	"redis-key":        "redis.key",
	"pool-name":        "pool.name",
	"max-workers":      "pool.max_workers",
	"min-workers":      "pool.min_workers",
	"queue-capacity":   "pool.queue_capacity",
	"scale-step":       "pool.scale_step",
	"manager-interval": "pool.manager_interval",
	"manager-schedule": "pool.manager_schedule",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "elasticpool",
		Short: "Self-scaling worker pool toolkit",
		Long: `elasticpool runs work on a worker pool that grows while a backlog builds
and shrinks back once workers sit idle.

Settings come from flags, ELASTICPOOL_* environment variables and
$XDG_CONFIG_HOME/elasticpool/config.yaml, in that order of precedence.`,
		SilenceUsage: true,
	}

	defaults := config.Default()
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/elasticpool/config.yaml)")
	flags.String("log-level", defaults.Log.Level, "log level: debug, info, warn or error")
	flags.String("log-format", defaults.Log.Format, "log format: text or json")
	flags.String("log-file", "", "append logs to this file instead of stderr")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flags.String("redis-addr", "", "publish pool status to this Redis server")
	flags.String("redis-key", defaults.Redis.Key, "Redis key prefix for the status board")
	flags.String("pool-name", defaults.Pool.Name, "name of the pool in logs, metrics and status")
	flags.Int("max-workers", defaults.Pool.MaxWorkers, "maximum number of workers")
	flags.Int("min-workers", defaults.Pool.MinWorkers, "minimum number of workers")
	flags.Int("queue-capacity", defaults.Pool.QueueCapacity, "maximum number of queued tasks")
	flags.Int("scale-step", defaults.Pool.ScaleStep, "workers added or retired per manager tick")
	flags.Duration("manager-interval", defaults.Pool.ManagerInterval, "how often the manager rebalances")
	flags.String("manager-schedule", "", `cron spec for the manager, e.g. "@every 5s" (overrides --manager-interval)`)

	root.AddCommand(
		newSearchCmd(),
		newDemoCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)
	return root
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	viper.Reset()
	config.SetDefaults()

	flags := cmd.Flags()
	flags.AddFlagSet(cmd.InheritedFlags())
	for flag, key := range flagKeys {
		if f := flags.Lookup(flag); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
	}

	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.Dir())
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return config.Load()
}

// elapsed formats d the way run summaries print it.
func elapsed(d time.Duration) string {
	return fmt.Sprintf("%.2f s", d.Seconds())
}
