package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
)

// ErrInvalidKey is returned for empty or reserved module keys.
var ErrInvalidKey = errors.New("invalid module key")

// ValidateKey rejects module keys that cannot own a slice.
func ValidateKey(key string) error {
	if key == "" || key == domain.PersistKey {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ReducerRegistry maps module keys to reducers and keeps the container's
// aggregate reducer in sync with the mapping.
type ReducerRegistry struct {
	mu        sync.Mutex
	reducers  *registry.Registry[domain.Reducer]
	container *Container
	logger    *slog.Logger
}

// ReducerRegistryOption configures a ReducerRegistry.
type ReducerRegistryOption func(*ReducerRegistry)

// WithReducerLogger sets the registry logger.
func WithReducerLogger(logger *slog.Logger) ReducerRegistryOption {
	return func(r *ReducerRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReducerRegistry creates a registry driving container.
func NewReducerRegistry(container *Container, opts ...ReducerRegistryOption) *ReducerRegistry {
	r := &ReducerRegistry{
		reducers:  registry.NewRegistry[domain.Reducer](),
		container: container,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs fn under key and swaps the aggregate reducer.
// An existing key is left alone and (false, nil) is returned.
// If the new reducer fails to initialise, the registration is rolled back.
func (r *ReducerRegistry) Register(ctx context.Context, key string, fn domain.Reducer) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if fn == nil {
		return false, fmt.Errorf("reducer for %q is nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.reducers.Register(key, fn) {
		r.logger.DebugContext(ctx, "reducer already registered", "key", key)
		return false, nil
	}
	if err := r.container.ReplaceReducer(ctx, Combine(r.reducers.Snapshot())); err != nil {
		r.reducers.Unregister(key)
		return false, fmt.Errorf("failed to install reducer %q: %w", key, err)
	}
	r.logger.DebugContext(ctx, "reducer registered", "key", key)
	return true, nil
}

// Unregister removes the reducer under key and swaps the aggregate reducer.
// The key's slice is dropped from the next tree.
func (r *ReducerRegistry) Unregister(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, ok := r.reducers.Lookup(key)
	if !ok {
		return false, nil
	}
	r.reducers.Unregister(key)
	if err := r.container.ReplaceReducer(ctx, Combine(r.reducers.Snapshot())); err != nil {
		r.reducers.Register(key, fn)
		return false, fmt.Errorf("failed to remove reducer %q: %w", key, err)
	}
	r.logger.DebugContext(ctx, "reducer removed", "key", key)
	return true, nil
}

// Has reports whether a reducer is registered under key.
func (r *ReducerRegistry) Has(key string) bool {
	return r.reducers.Has(key)
}

// Keys returns the registered keys, sorted.
func (r *ReducerRegistry) Keys() []string {
	return r.reducers.Keys()
}

// Len returns the number of registered reducers.
func (r *ReducerRegistry) Len() int {
	return r.reducers.Len()
}
