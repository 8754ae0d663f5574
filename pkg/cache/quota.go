package cache

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlrt/pkg/config"
	"github.com/ajitpratap0/sqlrt/pkg/errors"
	"github.com/ajitpratap0/sqlrt/pkg/logger"
)

// Quota decides whether the cache must be cleared before the next insert.
type Quota interface {
	// Breached is called with the current entry count; reason describes the breach.
	Breached(entries int64) (breached bool, reason string)
	Mode() string
}

type itemQuota struct {
	max int64
}

// MaxItems clears the cache when it already holds max entries.
func MaxItems(max int) Quota {
	return itemQuota{max: int64(max)}
}

func (q itemQuota) Breached(entries int64) (bool, string) {
	if entries >= q.max {
		return true, fmt.Sprintf("%d entries reached ceiling %d", entries, q.max)
	}
	return false, ""
}

func (q itemQuota) Mode() string { return config.QuotaModeItems }

// MemoryReader reports the memory currently available to the process in bytes.
type MemoryReader func() (uint64, error)

// SystemMemory reads available memory from the operating system.
func SystemMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

type memoryQuota struct {
	floor uint64
	read  MemoryReader
}

// MinFreeMemory clears the cache when available memory drops below floor
// bytes. A nil reader uses SystemMemory. Read failures never clear.
func MinFreeMemory(floor uint64, read MemoryReader) Quota {
	if read == nil {
		read = SystemMemory
	}
	return memoryQuota{floor: floor, read: read}
}

func (q memoryQuota) Breached(int64) (bool, string) {
	avail, err := q.read()
	if err != nil {
		logger.Warn("free memory read failed", zap.Error(err))
		return false, ""
	}
	if avail < q.floor {
		return true, fmt.Sprintf("%d bytes available, floor %d", avail, q.floor)
	}
	return false, ""
}

func (q memoryQuota) Mode() string { return config.QuotaModeFreeMemory }

// QuotaFromConfig builds the quota named by cfg.
func QuotaFromConfig(cfg config.CacheConfig) (Quota, error) {
	switch cfg.QuotaMode {
	case config.QuotaModeItems, "":
		if cfg.MaxItems <= 0 {
			return nil, errors.New(errors.ErrorTypeConfig, "cache.max_items must be positive")
		}
		return MaxItems(cfg.MaxItems), nil
	case config.QuotaModeFreeMemory:
		return MinFreeMemory(cfg.MinFreeMemoryBytes, nil), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown cache quota mode %q", cfg.QuotaMode)
}

// FromConfig creates a cache from configuration.
func FromConfig(cfg config.CacheConfig, opts ...Option) (*ResultCache, error) {
	q, err := QuotaFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(q, opts...), nil
}
