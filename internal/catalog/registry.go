package catalog

import (
	"sort"
	"sync"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"go.uber.org/zap"
)

// Registry indexes discovered engines by name and kind.
type Registry struct {
	sync.RWMutex
	entries map[string]*Entry        // name -> entry
	byKind  map[engine.Kind][]*Entry // kind -> entries
	logger  *zap.Logger
}

// NewRegistry creates a new engine registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		byKind:  make(map[engine.Kind][]*Entry),
		logger:  logger.With(zap.String("component", "engine-registry")),
	}
}

// Register adds an engine to the registry.
func (r *Registry) Register(entry *Entry) error {
	r.Lock()
	defer r.Unlock()

	name := entry.Name()

	if _, exists := r.entries[name]; exists {
		return &EngineAlreadyRegisteredError{Name: name}
	}

	r.entries[name] = entry

	kind := entry.Kind()
	r.byKind[kind] = append(r.byKind[kind], entry)

	r.logger.Info("Engine registered",
		zap.String("name", name),
		zap.String("kind", string(kind)),
	)

	return nil
}

// Get retrieves an engine by name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.RLock()
	defer r.RUnlock()

	entry, ok := r.entries[name]
	return entry, ok
}

// LookupByKind finds engines of one backend kind, in registration order.
func (r *Registry) LookupByKind(kind engine.Kind) []*Entry {
	r.RLock()
	defer r.RUnlock()

	entries, ok := r.byKind[kind]
	if !ok || len(entries) == 0 {
		return []*Entry{}
	}
	result := make([]*Entry, len(entries))
	copy(result, entries)
	return result
}

// List returns all registered engines sorted by name.
func (r *Registry) List() []*Entry {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Unregister removes an engine from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return
	}

	kind := entry.Kind()
	entries := r.byKind[kind]
	for i, e := range entries {
		if e.Name() == name {
			r.byKind[kind] = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	delete(r.entries, name)

	r.logger.Info("Engine unregistered", zap.String("name", name))
}

// Count returns the number of registered engines.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.entries)
}
