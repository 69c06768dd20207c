package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

// ProfileStore holds named option profiles for the profile operation.
type ProfileStore interface {
	// Fetch returns the option list stored under the named profile.
	Fetch(ctx context.Context, name string) (tlspolicy.Options, error)
}

// MemoryProfileStore is an in-memory implementation of ProfileStore.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]tlspolicy.Options
}

// NewMemoryProfileStore creates a new in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		profiles: make(map[string]tlspolicy.Options),
	}
}

// Put stores a profile, replacing any previous entry with the same name.
func (s *MemoryProfileStore) Put(name string, opts tlspolicy.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[name] = opts.Clone()
}

// Fetch returns the option list stored under the named profile.
func (s *MemoryProfileStore) Fetch(_ context.Context, name string) (tlspolicy.Options, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opts, ok := s.profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile not found: %s", name)
	}
	return opts.Clone(), nil
}

// ProfileOperation builds an operation that resolves named profiles from a
// store. Each argument names one profile; the profiles' option lists are
// concatenated in argument order.
func ProfileOperation(store ProfileStore) tlspolicy.Operation {
	return func(ctx context.Context, args ...any) (tlspolicy.Options, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("profile operation: at least one profile name required")
		}

		var opts tlspolicy.Options
		for _, arg := range args {
			name, ok := arg.(string)
			if !ok {
				return nil, fmt.Errorf("profile operation: profile name must be a string, got %T", arg)
			}
			fetched, err := store.Fetch(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("profile operation: %w", err)
			}
			opts = append(opts, fetched...)
		}
		return opts, nil
	}
}
