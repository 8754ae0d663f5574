// Package config provides the unified configuration for sqlrt.
// A single Config structure carries every tunable of the runtime, organized
// into logical sections:
//   - Pool: connection pool bounds, idle timeout, replenish period
//   - Cache: result cache quota mode and thresholds
//   - Binder: variable name matching and unresolved-token policy
//   - Statements: statement files backing keyed statements
//   - Observability: metrics and tracing switches
//   - Logging: zap logger settings
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Pool.MaxSize = 100
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

// Cache quota modes.
const (
	QuotaModeItems      = "items"
	QuotaModeFreeMemory = "free_memory"
)

// Unresolved token policies.
const (
	UnresolvedFail        = "fail"
	UnresolvedPassThrough = "pass_through"
)

// Config is the root configuration structure.
type Config struct {
	// Name identifies the runtime instance in logs and metrics
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// Pool settings control the adaptive connection pools
	Pool PoolConfig `yaml:"pool" json:"pool" mapstructure:"pool"`

	// Cache settings control the result cache quota
	Cache CacheConfig `yaml:"cache" json:"cache" mapstructure:"cache"`

	// Binder settings control variable matching
	Binder BinderConfig `yaml:"binder" json:"binder" mapstructure:"binder"`

	// Statements configures keyed statement files
	Statements StatementsConfig `yaml:"statements" json:"statements" mapstructure:"statements"`

	// Observability settings for metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`

	// Logging configures the global zap logger
	Logging logger.Config `yaml:"logging" json:"logging" mapstructure:"logging"`
}

// PoolConfig contains connection pool settings.
type PoolConfig struct {
	// MinSize is the floor for a pool's target capacity
	MinSize int `yaml:"min_size" json:"min_size" mapstructure:"min_size"`
	// MaxSize is the ceiling for a pool's target capacity
	MaxSize int `yaml:"max_size" json:"max_size" mapstructure:"max_size"`
	// InitialTarget is the target capacity of a newly registered pool
	InitialTarget int `yaml:"initial_target" json:"initial_target" mapstructure:"initial_target"`
	// GrowthFactor multiplies the target when an empty pool is hit
	GrowthFactor float64 `yaml:"growth_factor" json:"growth_factor" mapstructure:"growth_factor"`
	// IdleTimeout evicts idle connections older than this
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	// ReplenishInterval is the period of the replenisher loop
	ReplenishInterval time.Duration `yaml:"replenish_interval" json:"replenish_interval" mapstructure:"replenish_interval"`
	// OpenConcurrency bounds parallel opens during top-up (0 = unbounded)
	OpenConcurrency int `yaml:"open_concurrency" json:"open_concurrency" mapstructure:"open_concurrency"`
}

// CacheConfig contains result cache settings.
type CacheConfig struct {
	// QuotaMode selects items or free_memory
	QuotaMode string `yaml:"quota_mode" json:"quota_mode" mapstructure:"quota_mode"`
	// MaxItems is the item-count ceiling in items mode
	MaxItems int `yaml:"max_items" json:"max_items" mapstructure:"max_items"`
	// MinFreeMemoryBytes is the available-memory floor in free_memory mode
	MinFreeMemoryBytes uint64 `yaml:"min_free_memory_bytes" json:"min_free_memory_bytes" mapstructure:"min_free_memory_bytes"`
}

// BinderConfig contains variable binding settings.
type BinderConfig struct {
	// CaseInsensitive matches ?name tokens ignoring case
	CaseInsensitive bool `yaml:"case_insensitive" json:"case_insensitive" mapstructure:"case_insensitive"`
	// UnresolvedTokens is fail or pass_through
	UnresolvedTokens string `yaml:"unresolved_tokens" json:"unresolved_tokens" mapstructure:"unresolved_tokens"`
}

// StatementsConfig points at keyed statement files.
type StatementsConfig struct {
	// Files are YAML statement files, later files override earlier keys
	Files []string `yaml:"files" json:"files" mapstructure:"files"`
	// Host selects host-specific statements; empty means the machine hostname
	Host string `yaml:"host" json:"host" mapstructure:"host"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics registers Prometheus collectors
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// EnableTracing installs the OpenTelemetry tracer provider
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
	// ServiceName labels spans
	ServiceName string `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
}

// Default returns a Config populated with production defaults.
func Default() *Config {
	return &Config{
		Name: "sqlrt",
		Pool: PoolConfig{
			MinSize:           5,
			MaxSize:           50,
			InitialTarget:     10,
			GrowthFactor:      1.1,
			IdleTimeout:       30 * time.Second,
			ReplenishInterval: 20 * time.Second,
			OpenConcurrency:   0,
		},
		Cache: CacheConfig{
			QuotaMode:          QuotaModeItems,
			MaxItems:           10000,
			MinFreeMemoryBytes: 500 * 1024 * 1024,
		},
		Binder: BinderConfig{
			CaseInsensitive:  false,
			UnresolvedTokens: UnresolvedFail,
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     true,
			EnableTracing:     false,
			TracingSampleRate: 0.1,
			ServiceName:       "sqlrt",
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Pool.MinSize < 0 {
		return fmt.Errorf("pool.min_size cannot be negative")
	}
	if c.Pool.MaxSize <= 0 {
		return fmt.Errorf("pool.max_size must be positive")
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		return fmt.Errorf("pool.min_size (%d) exceeds pool.max_size (%d)", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.Pool.InitialTarget < c.Pool.MinSize || c.Pool.InitialTarget > c.Pool.MaxSize {
		return fmt.Errorf("pool.initial_target must be within [%d, %d]", c.Pool.MinSize, c.Pool.MaxSize)
	}
	if c.Pool.GrowthFactor < 1 {
		return fmt.Errorf("pool.growth_factor must be at least 1")
	}
	if c.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("pool.idle_timeout must be positive")
	}
	if c.Pool.ReplenishInterval <= 0 {
		return fmt.Errorf("pool.replenish_interval must be positive")
	}
	if c.Pool.OpenConcurrency < 0 {
		return fmt.Errorf("pool.open_concurrency cannot be negative")
	}

	switch c.Cache.QuotaMode {
	case QuotaModeItems:
		if c.Cache.MaxItems <= 0 {
			return fmt.Errorf("cache.max_items must be positive")
		}
	case QuotaModeFreeMemory:
	default:
		return fmt.Errorf("unknown cache.quota_mode %q", c.Cache.QuotaMode)
	}

	switch c.Binder.UnresolvedTokens {
	case UnresolvedFail, UnresolvedPassThrough:
	default:
		return fmt.Errorf("unknown binder.unresolved_tokens %q", c.Binder.UnresolvedTokens)
	}

	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("observability.tracing_sample_rate must be within [0, 1]")
	}
	return nil
}
