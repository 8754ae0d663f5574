package config_test

import (
	"fmt"
	"log"
	"time"

	"github.com/ajitpratap0/sqlrt/pkg/config"
)

// ExampleDefault demonstrates creating a configuration with default values.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Pool bounds: [%d, %d]\n", cfg.Pool.MinSize, cfg.Pool.MaxSize)
	fmt.Printf("Idle timeout: %s\n", cfg.Pool.IdleTimeout)
	fmt.Printf("Replenish interval: %s\n", cfg.Pool.ReplenishInterval)

	// Output:
	// Pool bounds: [5, 50]
	// Idle timeout: 30s
	// Replenish interval: 20s
}

// ExampleConfig_Validate shows how to validate a configuration before using it.
func ExampleConfig_Validate() {
	cfg := config.Default()

	cfg.Pool.MaxSize = 100
	cfg.Pool.IdleTimeout = 2 * time.Minute
	cfg.Cache.QuotaMode = config.QuotaModeFreeMemory

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}

// ExampleConfig_binder shows the binder switches.
func ExampleConfig_binder() {
	cfg := config.Default()
	cfg.Binder.CaseInsensitive = true
	cfg.Binder.UnresolvedTokens = config.UnresolvedPassThrough

	fmt.Println(cfg.Validate() == nil)

	// Output:
	// true
}
