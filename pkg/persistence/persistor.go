package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultKey is the storage key the snapshot is saved under.
const DefaultKey = "root"

// Store is the part of the state container the Persistor drives.
type Store interface {
	ports.Dispatcher
	ports.StateReader
}

// Persistor saves whitelisted slices of the state tree and restores them.
//
// Saves are coalesced: the container listener only records the latest
// snapshot and a single writer goroutine stores it, so a burst of dispatches
// costs one write.
type Persistor struct {
	storage   ports.Storage
	key       string
	version   int
	whitelist []string
	logger    *slog.Logger

	mu         sync.Mutex
	pending    map[string]any
	prev       map[string]any
	latest     *domain.Snapshot
	rehydrated bool

	wake    chan struct{}
	flushes chan chan error
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

// Option configures a Persistor.
type Option func(*Persistor)

// WithKey sets the storage key.
func WithKey(key string) Option {
	return func(p *Persistor) {
		if key != "" {
			p.key = key
		}
	}
}

// WithVersion sets the schema version. Stored snapshots of another version are ignored.
func WithVersion(v int) Option {
	return func(p *Persistor) {
		p.version = v
	}
}

// WithWhitelist sets the module keys that are persisted. Nothing is persisted by default.
func WithWhitelist(keys ...string) Option {
	return func(p *Persistor) {
		p.whitelist = append([]string(nil), keys...)
		sort.Strings(p.whitelist)
	}
}

// WithLogger sets the persistor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persistor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Persistor over storage and starts its writer.
// Close stops the writer after a final flush.
func New(storage ports.Storage, opts ...Option) *Persistor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Persistor{
		storage: storage,
		key:     DefaultKey,
		version: domain.DefaultPersistVersion,
		logger:  logging.NewNop(),
		pending: make(map[string]any),
		wake:    make(chan struct{}, 1),
		flushes: make(chan chan error),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.writer()
	return p
}

// Key returns the storage key.
func (p *Persistor) Key() string { return p.key }

// Version returns the schema version.
func (p *Persistor) Version() int { return p.version }

// Whitelist returns the persisted module keys.
func (p *Persistor) Whitelist() []string { return append([]string(nil), p.whitelist...) }

// Rehydrate loads the stored snapshot and dispatches the initial
// persist/REHYDRATE action. Slices of modules that are not registered yet are
// held back until Restore is called for them.
//
// A missing, unreadable or outdated snapshot is not fatal: the tree keeps its
// defaults, the problem is logged, and the container is still marked as
// rehydrated. Only a failing dispatch is returned.
func (p *Persistor) Rehydrate(ctx context.Context, store Store) error {
	slices := p.load(ctx)

	err := store.Dispatch(ctx, domain.NewAction(domain.ActionRehydrate, domain.RehydratePayload{
		Slices:  slices,
		Version: p.version,
		Initial: true,
	}))
	if err != nil {
		return fmt.Errorf("failed to rehydrate: %w", err)
	}

	tree := store.GetState()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range slices {
		if _, registered := tree[k]; !registered {
			p.pending[k] = v
		}
	}
	if !p.rehydrated {
		p.rehydrated = true
		p.prev = p.whitelisted(tree)
	}
	p.logger.InfoContext(ctx, "state rehydrated", "key", p.key, "restored", len(slices)-len(p.pending), "pending", len(p.pending))
	return nil
}

// Restore applies the held-back slice for a module that registered after
// Rehydrate. It does nothing when no slice is pending for key. The slice is
// released either way: when it cannot be applied the module keeps its
// defaults and its live state is saved from then on.
func (p *Persistor) Restore(ctx context.Context, store Store, key string) error {
	p.mu.Lock()
	slice, ok := p.pending[key]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	err := store.Dispatch(ctx, domain.NewAction(domain.ActionRehydrate, domain.RehydratePayload{
		Slices:  map[string]any{key: slice},
		Version: p.version,
	}))

	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()

	if err != nil {
		p.logger.WarnContext(ctx, "dropping unrestorable slice", "key", key, "error", err)
		return fmt.Errorf("failed to restore %q: %w", key, err)
	}
	p.logger.DebugContext(ctx, "slice restored", "key", key)
	return nil
}

// Pending returns the keys whose persisted slice awaits registration, sorted.
func (p *Persistor) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.pending))
	for k := range p.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Listener returns the container listener that schedules saves.
// Nothing is saved before the initial rehydration.
func (p *Persistor) Listener() domain.Listener {
	return func(_ context.Context, action domain.Action, tree domain.Tree) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if !p.rehydrated {
			if action.Type == domain.ActionRehydrate && tree.Persist().Rehydrated {
				p.rehydrated = true
				p.prev = p.whitelisted(tree)
			}
			return
		}

		current := p.whitelisted(tree)
		if sameSlices(p.prev, current) {
			return
		}
		p.prev = current

		snap := domain.NewSnapshot(p.version)
		for k, v := range current {
			snap.Slices[k] = v
		}
		for k, v := range p.pending {
			if _, live := current[k]; !live {
				snap.Slices[k] = v
			}
		}
		p.latest = snap

		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns the stored snapshot.
func (p *Persistor) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	return p.storage.Load(ctx, p.key)
}

// Flush waits until every scheduled snapshot has been written and returns the
// error of the last write, if any.
func (p *Persistor) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case p.flushes <- reply:
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Purge drops scheduled writes and held-back slices and deletes the stored snapshot.
func (p *Persistor) Purge(ctx context.Context) error {
	p.mu.Lock()
	p.latest = nil
	p.pending = make(map[string]any)
	p.mu.Unlock()

	if err := p.Flush(ctx); err != nil {
		return err
	}
	if err := p.storage.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("failed to purge %q: %w", p.key, err)
	}
	p.logger.InfoContext(ctx, "persisted state purged", "key", p.key)
	return nil
}

// Close flushes pending writes and stops the writer. It is safe to call more than once.
func (p *Persistor) Close(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		err = p.Flush(ctx)
		p.cancel()
		<-p.stopped
	})
	return err
}

func (p *Persistor) load(ctx context.Context) map[string]any {
	slices := make(map[string]any)
	if len(p.whitelist) == 0 {
		return slices
	}

	snap, err := p.storage.Load(ctx, p.key)
	switch {
	case errors.Is(err, domain.ErrSnapshotNotFound):
		p.logger.DebugContext(ctx, "no persisted state", "key", p.key)
		return slices
	case err != nil:
		p.logger.WarnContext(ctx, "rehydration failed, using defaults", "key", p.key, "error", err)
		return slices
	case snap.Version != p.version:
		p.logger.WarnContext(ctx, "rehydration failed, using defaults", "key", p.key,
			"error", fmt.Errorf("%w: stored %d, expected %d", domain.ErrVersionMismatch, snap.Version, p.version))
		return slices
	}

	for _, k := range p.whitelist {
		if v, ok := snap.Slices[k]; ok {
			slices[k] = v
		}
	}
	return slices
}

func (p *Persistor) whitelisted(tree domain.Tree) map[string]any {
	out := make(map[string]any, len(p.whitelist))
	for _, k := range p.whitelist {
		if v, ok := tree[k]; ok {
			out[k] = v
		}
	}
	return out
}

func sameSlices(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !domain.Identical(av, bv) {
			return false
		}
	}
	return true
}

func (p *Persistor) writer() {
	defer close(p.stopped)
	var lastErr error
	for {
		select {
		case <-p.wake:
			lastErr = p.save()
		case reply := <-p.flushes:
			err := p.save()
			if err == nil {
				err = lastErr
			}
			lastErr = nil
			reply <- err
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Persistor) save() error {
	p.mu.Lock()
	snap := p.latest
	p.latest = nil
	p.mu.Unlock()

	if snap == nil {
		return nil
	}
	if err := p.storage.Save(p.ctx, p.key, snap); err != nil {
		p.logger.Error("failed to persist state", "key", p.key, "error", err)
		return err
	}
	p.logger.Debug("state persisted", "key", p.key, "slices", len(snap.Slices))
	return nil
}
