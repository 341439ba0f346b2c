package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nodepool/pkg/apperrors"
)

// AdapterInfo describes a registered pool adapter.
type AdapterInfo struct {
	Kind        string `json:"kind"`         // "pgxpool", "sqldb"
	DisplayName string `json:"display_name"` // "pgx pool", "database/sql pool"
	Description string `json:"description"`
}

// AdapterRegistration contains info + factory for creating a pool connector.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory ConnectorFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Kind] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by kind.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// GetFactory returns the factory for an adapter kind.
// Returns nil if kind is not registered.
func GetFactory(kind string) ConnectorFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[kind]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter kind is available.
func IsRegistered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Open creates a data source using the adapter registered under kind.
func Open(ctx context.Context, kind string, opts Options, logger *zap.Logger) (*PooledDataSource, error) {
	factory := GetFactory(kind)
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported pool kind: %s (not compiled in)", apperrors.ErrConfig, kind)
	}
	return New(ctx, opts, factory, logger)
}
