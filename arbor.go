package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/effect"
	"github.com/aretw0/arbor/pkg/persistence"
)

// Module is a lazily loaded feature: a state slice, its reducer and an
// optional long-running effect handler.
type Module struct {
	Key     string
	Reducer domain.Reducer
	Saga    effect.Saga
}

// App is the high-level entry point of the library. It owns one state
// container and the registries that feature modules join at runtime.
type App struct {
	container *runtime.Container
	reducers  *runtime.ReducerRegistry
	sagas     *runtime.SagaRegistry
	locks     *runtime.KeyedMutex
	persistor *persistence.Persistor

	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	cancelTimeout time.Duration

	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
	closeErr    error
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *App) {
		a.hooks = hooks
	}
}

// WithPersistor attaches a Persistor. Its listener is subscribed on New and
// it is closed with the App.
func WithPersistor(p *persistence.Persistor) Option {
	return func(a *App) {
		a.persistor = p
	}
}

// WithCancelTimeout bounds how long an effect task may take to stop.
func WithCancelTimeout(d time.Duration) Option {
	return func(a *App) {
		a.cancelTimeout = d
	}
}

// New creates an App with an empty state tree.
// Close stops every effect task and flushes persistence.
func New(opts ...Option) *App {
	a := &App{
		logger:        logging.NewNop(),
		cancelTimeout: runtime.DefaultCancelTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}

	version := domain.DefaultPersistVersion
	if a.persistor != nil {
		version = a.persistor.Version()
	}

	a.container = runtime.NewContainer(nil, domain.NewTree(version),
		runtime.WithHooks(a.hooks),
		runtime.WithLogger(a.logger),
	)
	a.reducers = runtime.NewReducerRegistry(a.container, runtime.WithReducerLogger(a.logger))

	root, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sagas = runtime.NewSagaRegistry(root, a.container,
		runtime.WithCancelTimeout(a.cancelTimeout),
		runtime.WithSagaHooks(a.hooks),
		runtime.WithSagaLogger(a.logger),
	)
	a.locks = runtime.NewKeyedMutex()

	if a.persistor != nil {
		a.unsubscribe = a.container.Subscribe(a.persistor.Listener())
	}
	return a
}

// Rehydrate restores persisted state and marks the tree as rehydrated.
// Without a Persistor it only flips the rehydrated flag.
func (a *App) Rehydrate(ctx context.Context) error {
	if a.persistor == nil {
		return a.container.Dispatch(ctx, domain.NewAction(domain.ActionRehydrate, domain.RehydratePayload{
			Version: a.State().Persist().Version,
			Initial: true,
		}))
	}
	return a.persistor.Rehydrate(ctx, a.container)
}

// EnsureRegistered installs a module if it is not installed yet.
//
// The reducer is installed first, then any persisted slice for key is
// restored, then saga is started. Calls for the same key are serialised and
// repeated calls are no-ops: the first reducer wins and a running saga is left
// alone. Either reducer or saga may be nil.
func (a *App) EnsureRegistered(ctx context.Context, key string, reducer domain.Reducer, saga effect.Saga) error {
	if err := runtime.ValidateKey(key); err != nil {
		return err
	}
	unlock, err := a.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	installed := false
	if reducer != nil {
		installed, err = a.reducers.Register(ctx, key, reducer)
		if err != nil {
			return err
		}
	}

	if installed && a.persistor != nil {
		if err := a.persistor.Restore(ctx, a.container, key); err != nil {
			a.logger.WarnContext(ctx, "failed to restore persisted slice, using defaults", "key", key, "error", err)
		}
	}

	started := false
	if saga != nil && !a.sagas.Running(key) {
		if _, err := a.sagas.Start(ctx, key, saga); err != nil {
			return fmt.Errorf("failed to start effect for %q: %w", key, err)
		}
		started = true
	}

	if !installed && !started {
		return nil
	}
	a.logger.InfoContext(ctx, "module registered", "key", key, "reducer", installed, "saga", started)
	if a.hooks.OnModuleRegistered != nil {
		a.hooks.OnModuleRegistered(ctx, &domain.ModuleEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventModuleRegistered},
			Key:       key,
			Reducer:   installed,
			Saga:      started,
		})
	}
	return nil
}

// EnsureUnregistered cancels the module's effect task, waits for it, and
// removes its reducer. The slice disappears from the next state tree.
func (a *App) EnsureUnregistered(ctx context.Context, key string) error {
	unlock, err := a.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	_, hadSaga := a.sagas.Lookup(key)
	if err := a.sagas.Cancel(ctx, key); err != nil {
		return fmt.Errorf("failed to stop effect for %q: %w", key, err)
	}
	removed, err := a.reducers.Unregister(ctx, key)
	if err != nil {
		return err
	}

	if !removed && !hadSaga {
		return nil
	}
	a.logger.InfoContext(ctx, "module ejected", "key", key)
	if a.hooks.OnModuleEjected != nil {
		a.hooks.OnModuleEjected(ctx, &domain.ModuleEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventModuleEjected},
			Key:       key,
			Reducer:   removed,
			Saga:      hadSaga,
		})
	}
	return nil
}

// Install is EnsureRegistered for a Module.
func (a *App) Install(ctx context.Context, m Module) error {
	return a.EnsureRegistered(ctx, m.Key, m.Reducer, m.Saga)
}

// Dispatch applies an action to the state tree.
func (a *App) Dispatch(ctx context.Context, action domain.Action) error {
	return a.container.Dispatch(ctx, action)
}

// State returns the current state tree. It must not be modified.
func (a *App) State() domain.Tree {
	return a.container.GetState()
}

// Subscribe registers a listener called after every dispatch.
func (a *App) Subscribe(listener domain.Listener) (unsubscribe func()) {
	return a.container.Subscribe(listener)
}

// Modules returns the keys with an installed reducer, sorted.
func (a *App) Modules() []string {
	return a.reducers.Keys()
}

// Tasks returns the keys with an effect task, sorted.
func (a *App) Tasks() []string {
	return a.sagas.Keys()
}

// Running reports whether the effect task of key is live.
func (a *App) Running(key string) bool {
	return a.sagas.Running(key)
}

// Task returns the effect task registered under key.
func (a *App) Task(key string) (*effect.Task, bool) {
	return a.sagas.Lookup(key)
}

// Persistor returns the attached Persistor, or nil.
func (a *App) Persistor() *persistence.Persistor {
	return a.persistor
}

// Close stops every effect task, then flushes and closes persistence.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := a.sagas.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop effects: %w", err))
		}
		a.cancel()
		if a.persistor != nil {
			a.unsubscribe()
			if err := a.persistor.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to flush state: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Slice returns the slice under key as S, or fallback when the key is absent
// or its value cannot be represented as S.
func Slice[S any](tree domain.Tree, key string, fallback S) S {
	v, ok := tree[key]
	if !ok {
		return fallback
	}
	s, err := domain.Coerce(v, fallback)
	if err != nil {
		return fallback
	}
	return s
}
