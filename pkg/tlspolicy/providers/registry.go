// Package providers implements the operation registry backing DynamicCall
// providers, plus the built-in option sources shipped with the daemon.
package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

// Registry maps DynamicCall targets to operations. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]tlspolicy.Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]tlspolicy.Operation)}
}

// Builtin returns a registry preloaded with the built-in operations
// ("env" and "file").
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister("env", EnvOperation)
	r.MustRegister("file", FileOperation)
	return r
}

// Register adds an operation under target. Registering an empty target, a nil
// operation, or a duplicate target is rejected.
func (r *Registry) Register(target string, op tlspolicy.Operation) error {
	if target == "" {
		return fmt.Errorf("operation target must not be empty")
	}
	if op == nil {
		return fmt.Errorf("operation %q must not be nil", target)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[target]; exists {
		return fmt.Errorf("operation %q already registered", target)
	}
	r.ops[target] = op
	return nil
}

// MustRegister is Register that panics on error, for wiring at startup.
func (r *Registry) MustRegister(target string, op tlspolicy.Operation) {
	if err := r.Register(target, op); err != nil {
		panic(err)
	}
}

// Lookup implements tlspolicy.OperationLookup.
func (r *Registry) Lookup(target string) (tlspolicy.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[target]
	return op, ok
}

// Targets lists registered targets in sorted order.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]string, 0, len(r.ops))
	for target := range r.ops {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}
