package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/xiaot623/deskrelay/internal/protocol"
)

// Adapter executes one kind of command against the local desktop.
type Adapter interface {
	Execute(ctx context.Context, params protocol.Params) (*protocol.Result, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, params protocol.Params) (*protocol.Result, error)

// Execute calls f.
func (f AdapterFunc) Execute(ctx context.Context, params protocol.Params) (*protocol.Result, error) {
	return f(ctx, params)
}

// Registry stores adapters keyed by command name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[protocol.CommandName]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[protocol.CommandName]Adapter),
	}
}

// Register adds an adapter for a command.
func (r *Registry) Register(name protocol.CommandName, adapter Adapter) error {
	if !name.Valid() {
		return fmt.Errorf("unknown command %q", name)
	}
	if adapter == nil {
		return fmt.Errorf("adapter is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter already registered for %s", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Lookup returns the adapter for name.
func (r *Registry) Lookup(name protocol.CommandName) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Missing lists known commands that have no adapter.
func (r *Registry) Missing() []protocol.CommandName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []protocol.CommandName
	for _, name := range protocol.Commands {
		if _, ok := r.adapters[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
