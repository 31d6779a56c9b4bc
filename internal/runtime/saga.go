package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/effect"
	"golang.org/x/sync/errgroup"
)

// DefaultCancelTimeout bounds how long Start and Cancel wait for a task to stop.
const DefaultCancelTimeout = 5 * time.Second

type sagaEntry struct {
	saga effect.Saga
	task *effect.Task
}

// SagaRegistry owns at most one running effect task per module key.
type SagaRegistry struct {
	root  context.Context
	store effect.Store

	mu      sync.Mutex
	entries map[string]*sagaEntry
	locks   *KeyedMutex

	cancelTimeout time.Duration
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
}

// SagaRegistryOption configures a SagaRegistry.
type SagaRegistryOption func(*SagaRegistry)

// WithCancelTimeout sets how long to wait for a cancelled task to stop.
func WithCancelTimeout(d time.Duration) SagaRegistryOption {
	return func(r *SagaRegistry) {
		if d > 0 {
			r.cancelTimeout = d
		}
	}
}

// WithSagaHooks registers task lifecycle hooks.
func WithSagaHooks(hooks domain.LifecycleHooks) SagaRegistryOption {
	return func(r *SagaRegistry) {
		r.hooks = hooks
	}
}

// WithSagaLogger sets the registry logger.
func WithSagaLogger(logger *slog.Logger) SagaRegistryOption {
	return func(r *SagaRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewSagaRegistry creates a registry whose tasks run under root and talk to store.
// Cancelling root stops every task.
func NewSagaRegistry(root context.Context, store effect.Store, opts ...SagaRegistryOption) *SagaRegistry {
	r := &SagaRegistry{
		root:          root,
		store:         store,
		entries:       make(map[string]*sagaEntry),
		locks:         NewKeyedMutex(),
		cancelTimeout: DefaultCancelTimeout,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs saga under key. A task already registered under key is
// cancelled and awaited first; if it does not stop within the cancel timeout
// Start returns domain.ErrCancelTimeout and starts nothing.
func (r *SagaRegistry) Start(ctx context.Context, key string, saga effect.Saga) (*effect.Task, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if saga == nil {
		return nil, fmt.Errorf("saga for %q is nil", key)
	}

	unlock, err := r.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if entry, ok := r.entry(key); ok {
		if err := r.stop(ctx, key, entry.task); err != nil {
			return nil, err
		}
	}

	task := effect.Spawn(r.root, key, saga, r.store,
		effect.WithOnError(r.reportFailure),
		effect.WithOnExit(r.onExit),
	)

	r.mu.Lock()
	r.entries[key] = &sagaEntry{saga: saga, task: task}
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "effect task started", "key", key, "task_id", task.ID())
	if r.hooks.OnTaskStart != nil {
		r.hooks.OnTaskStart(ctx, &domain.TaskEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventTaskStart},
			Key:       key,
			TaskID:    task.ID(),
		})
	}
	return task, nil
}

// Cancel stops the task under key and waits for it, bounded by the cancel
// timeout and ctx. On timeout the entry is kept so a later Start waits again.
func (r *SagaRegistry) Cancel(ctx context.Context, key string) error {
	unlock, err := r.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	entry, ok := r.entry(key)
	if !ok {
		return nil
	}
	return r.stop(ctx, key, entry.task)
}

// Running reports whether a live task runs under key.
func (r *SagaRegistry) Running(key string) bool {
	task, ok := r.Lookup(key)
	return ok && task.Running()
}

// Lookup returns the task registered under key.
func (r *SagaRegistry) Lookup(key string) (*effect.Task, bool) {
	entry, ok := r.entry(key)
	if !ok {
		return nil, false
	}
	return entry.task, true
}

// Keys returns the keys with a registered task, sorted.
func (r *SagaRegistry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Shutdown cancels every task concurrently and waits for them.
func (r *SagaRegistry) Shutdown(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range r.Keys() {
		key := key
		g.Go(func() error {
			return r.Cancel(gctx, key)
		})
	}
	return g.Wait()
}

func (r *SagaRegistry) entry(key string) (*sagaEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

func (r *SagaRegistry) stop(ctx context.Context, key string, task *effect.Task) error {
	task.Cancel()

	timer := time.NewTimer(r.cancelTimeout)
	defer timer.Stop()

	select {
	case <-task.Done():
		r.detach(key, task)
		return nil
	case <-timer.C:
		r.logger.WarnContext(ctx, "effect task ignored cancellation", "key", key, "task_id", task.ID(), "timeout", r.cancelTimeout)
		return fmt.Errorf("%w: %q after %s", domain.ErrCancelTimeout, key, r.cancelTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SagaRegistry) detach(key string, task *effect.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok && e.task == task {
		delete(r.entries, key)
	}
}

// reportFailure turns a handler failure into an @@effect/ERROR action.
func (r *SagaRegistry) reportFailure(task *effect.Task, err error) {
	r.logger.Error("effect failed", "key", task.Key(), "task_id", task.ID(), "error", err)

	action := domain.NewAction(domain.ActionEffectError, domain.EffectErrorPayload{
		Key:     task.Key(),
		TaskID:  task.ID(),
		Message: err.Error(),
	})
	if dErr := r.store.Dispatch(context.WithoutCancel(r.root), action); dErr != nil {
		r.logger.Warn("failed to report effect failure", "key", task.Key(), "error", dErr)
	}
}

func (r *SagaRegistry) onExit(task *effect.Task, err error, canceled bool) {
	if canceled {
		r.logger.Debug("effect task cancelled", "key", task.Key(), "task_id", task.ID())
	} else {
		r.logger.Debug("effect task finished", "key", task.Key(), "task_id", task.ID())
	}
	if r.hooks.OnTaskStop != nil {
		r.hooks.OnTaskStop(r.root, &domain.TaskEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventTaskStop},
			Key:       task.Key(),
			TaskID:    task.ID(),
			Canceled:  canceled,
			Err:       err,
		})
	}
}
