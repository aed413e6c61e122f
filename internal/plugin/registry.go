package plugin

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps adapter keys to adapter types and holds a set of handler
// types. It is written while plugins load and read while robots run.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*AdapterType
	handlers []*HandlerType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]*AdapterType)}
}

// Default is the process registry filled by init-time registration.
var Default = NewRegistry()

// NormalizeKey returns the canonical form of an adapter key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// RegisterAdapter stores t under key. A later registration under the same
// key replaces the earlier one.
func (r *Registry) RegisterAdapter(key string, t *AdapterType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[NormalizeKey(key)] = t
}

// Adapters returns a copy of the adapter mapping.
func (r *Registry) Adapters() map[string]*AdapterType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*AdapterType, len(r.adapters))
	for k, v := range r.adapters {
		out[k] = v
	}
	return out
}

// Adapter looks up the adapter type registered under key.
func (r *Registry) Adapter(key string) (*AdapterType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.adapters[NormalizeKey(key)]
	return t, ok
}

// RegisterHandler adds t to the handler set. Registering the same type
// again is a no-op.
func (r *Registry) RegisterHandler(t *HandlerType) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handlers {
		if h == t {
			return
		}
	}
	r.handlers = append(r.handlers, t)
}

// Handlers returns the registered handler types ordered by name.
func (r *Registry) Handlers() []*HandlerType {
	r.mu.RLock()
	out := append([]*HandlerType(nil), r.handlers...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset removes every adapter and handler.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = make(map[string]*AdapterType)
	r.handlers = nil
}

// RegisterAdapter registers t in the Default registry.
func RegisterAdapter(key string, t *AdapterType) { Default.RegisterAdapter(key, t) }

// RegisterHandler registers t in the Default registry.
func RegisterHandler(t *HandlerType) { Default.RegisterHandler(t) }
