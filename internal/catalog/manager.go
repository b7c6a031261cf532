package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"go.uber.org/zap"
)

// Manager discovers engines once and answers selection queries.
type Manager struct {
	paths    []string
	loader   *Loader
	registry *Registry
	logger   *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new engine catalog over the given search paths.
func NewManager(paths []string, logger *zap.Logger) *Manager {
	return &Manager{
		paths:    paths,
		loader:   NewLoader(logger),
		registry: NewRegistry(logger),
		logger:   logger.With(zap.String("component", "engine-catalog")),
	}
}

// LoadAll discovers and registers all engines from the search paths.
func (m *Manager) LoadAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("engines already loaded")
	}

	m.logger.Info("Loading engines", zap.Strings("paths", m.paths))

	entries, err := m.loader.DiscoverEngines(m.paths)
	if err != nil {
		var noEngines *NoEnginesFoundError
		if errors.As(err, &noEngines) {
			m.logger.Warn("No engines found in configured paths",
				zap.Strings("paths", m.paths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if err := m.registry.Register(entry); err != nil {
			m.logger.Error("Failed to register engine",
				zap.String("name", entry.Name()),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Engines loaded", zap.Int("count", m.registry.Count()))

	return nil
}

// Get retrieves an engine by name.
func (m *Manager) Get(name string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.registry.Get(name)
	if !ok {
		return nil, &EngineNotFoundError{Name: name}
	}
	return entry, nil
}

// Select returns the named engine. With an empty name it falls back to the
// first wasm engine, then the first native one.
func (m *Manager) Select(name string) (*Entry, error) {
	if name != "" {
		return m.Get(name)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, kind := range []engine.Kind{engine.KindWasm, engine.KindNative} {
		if entries := m.registry.LookupByKind(kind); len(entries) > 0 {
			return entries[0], nil
		}
	}
	return nil, &NoEnginesFoundError{Paths: m.paths}
}

// Registry returns the engine registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether engines have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
