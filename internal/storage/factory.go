// factory.go implements the storage backend registry and factory, mapping backend type
// strings (local, s3, azure, gcs, ftp, cloudinary) to constructor functions.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
)

// FactoryFunc creates a storage backend from configuration
type FactoryFunc func(*config.Config) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Registered returns the names of all registered backends, sorted.
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the storage backend selected by storage.default_backend
func NewStorage(cfg *config.Config) (Storage, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Storage.DefaultBackend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (registered: %s)",
			cfg.Storage.DefaultBackend, strings.Join(Registered(), ", "))
	}

	return factory(cfg)
}
