package pricing

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ClientConfig carries the per-entry settings a concrete client needs.
type ClientConfig struct {
	// SolverURL points at an optional anti-bot solver service. Empty means
	// direct API access.
	SolverURL string
	// Timeout bounds a single network call. Zero leaves the client default.
	Timeout time.Duration
}

// Factory builds a client for a given configuration.
type Factory func(cfg ClientConfig) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a client factory available under a driver identifier.
// Concrete client modules call this from their init path.
func Register(driver string, factory Factory) error {
	if driver == "" {
		return fmt.Errorf("pricing: driver identifier must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("pricing: factory for driver %s must not be nil", driver)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[driver]; exists {
		return fmt.Errorf("pricing: driver %s already registered", driver)
	}
	registry[driver] = factory
	return nil
}

// New builds a client using the registered factory for the driver.
func New(driver string, cfg ClientConfig) (Client, error) {
	registryMu.RLock()
	factory := registry[driver]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("pricing: no client registered for driver %s (known: %v)", driver, Drivers())
	}
	return factory(cfg)
}

// Drivers lists the registered driver identifiers.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
