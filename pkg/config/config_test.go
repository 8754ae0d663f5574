package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:     "min above max",
			mutate:   func(c *Config) { c.Pool.MinSize = 60 },
			errorMsg: "exceeds pool.max_size",
		},
		{
			name:     "initial target out of range",
			mutate:   func(c *Config) { c.Pool.InitialTarget = 1 },
			errorMsg: "pool.initial_target",
		},
		{
			name:     "growth factor below one",
			mutate:   func(c *Config) { c.Pool.GrowthFactor = 0.5 },
			errorMsg: "growth_factor",
		},
		{
			name:     "unknown quota mode",
			mutate:   func(c *Config) { c.Cache.QuotaMode = "lru" },
			errorMsg: "quota_mode",
		},
		{
			name:     "items mode needs ceiling",
			mutate:   func(c *Config) { c.Cache.MaxItems = 0 },
			errorMsg: "max_items",
		},
		{
			name:     "unknown token policy",
			mutate:   func(c *Config) { c.Binder.UnresolvedTokens = "ignore" },
			errorMsg: "unresolved_tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("SQLRT_TEST_STATEMENTS", "/etc/sqlrt/statements.yaml")

	path := filepath.Join(t.TempDir(), "sqlrt.yaml")
	content := `
name: billing
pool:
  max_size: 80
  idle_timeout: 45s
cache:
  quota_mode: items
  max_items: 2
statements:
  files: ["${SQLRT_TEST_STATEMENTS}"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "billing", cfg.Name)
	assert.Equal(t, 80, cfg.Pool.MaxSize)
	assert.Equal(t, 5, cfg.Pool.MinSize)
	assert.Equal(t, 45*time.Second, cfg.Pool.IdleTimeout)
	assert.Equal(t, 2, cfg.Cache.MaxItems)
	assert.Equal(t, []string{"/etc/sqlrt/statements.yaml"}, cfg.Statements.Files)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Pool.MaxSize = 12

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Pool.MaxSize)
	assert.Equal(t, cfg.Pool.IdleTimeout, loaded.Pool.IdleTimeout)
}

func TestLoadViper(t *testing.T) {
	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("SQLRT_POOL_MAX_SIZE", "75")
		t.Setenv("SQLRT_BINDER_UNRESOLVED_TOKENS", "pass_through")

		cfg, err := LoadViper("")
		require.NoError(t, err)
		assert.Equal(t, 75, cfg.Pool.MaxSize)
		assert.Equal(t, UnresolvedPassThrough, cfg.Binder.UnresolvedTokens)
		assert.Equal(t, 20*time.Second, cfg.Pool.ReplenishInterval)
	})

	t.Run("file values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sqlrt.yaml")
		require.NoError(t, os.WriteFile(path, []byte("pool:\n  replenish_interval: 5s\ncache:\n  quota_mode: free_memory\n"), 0o600))

		cfg, err := LoadViper(path)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Pool.ReplenishInterval)
		assert.Equal(t, QuotaModeFreeMemory, cfg.Cache.QuotaMode)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		t.Setenv("SQLRT_POOL_MIN_SIZE", "99")
		_, err := LoadViper("")
		require.Error(t, err)
	})
}
