package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. SQLRT_POOL_MAX_SIZE.
const EnvPrefix = "SQLRT"

// LoadViper loads configuration through viper. The file is optional: with an
// empty path only defaults and SQLRT_* environment variables apply. Any
// supported viper format (yaml, json, toml) may be used.
func LoadViper(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("name", d.Name)

	v.SetDefault("pool.min_size", d.Pool.MinSize)
	v.SetDefault("pool.max_size", d.Pool.MaxSize)
	v.SetDefault("pool.initial_target", d.Pool.InitialTarget)
	v.SetDefault("pool.growth_factor", d.Pool.GrowthFactor)
	v.SetDefault("pool.idle_timeout", d.Pool.IdleTimeout)
	v.SetDefault("pool.replenish_interval", d.Pool.ReplenishInterval)
	v.SetDefault("pool.open_concurrency", d.Pool.OpenConcurrency)

	v.SetDefault("cache.quota_mode", d.Cache.QuotaMode)
	v.SetDefault("cache.max_items", d.Cache.MaxItems)
	v.SetDefault("cache.min_free_memory_bytes", d.Cache.MinFreeMemoryBytes)

	v.SetDefault("binder.case_insensitive", d.Binder.CaseInsensitive)
	v.SetDefault("binder.unresolved_tokens", d.Binder.UnresolvedTokens)

	v.SetDefault("statements.files", d.Statements.Files)
	v.SetDefault("statements.host", d.Statements.Host)

	v.SetDefault("observability.enable_metrics", d.Observability.EnableMetrics)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", d.Observability.TracingSampleRate)
	v.SetDefault("observability.service_name", d.Observability.ServiceName)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
	v.SetDefault("logging.output_paths", d.Logging.OutputPaths)
}
