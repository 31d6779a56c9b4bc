package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

type notifyingKey struct{}

// Container holds the application state tree and applies actions to it.
//
// Dispatch and ReplaceReducer are serialised by one mutex, which gives every
// dispatch a total order. GetState never blocks.
//
// Listeners run synchronously while that mutex is held. A listener that calls
// Dispatch with the context it was given gets ErrReentrantDispatch; calling
// Dispatch from a listener with any other context deadlocks. Listeners that
// need to react with new actions should hand them to a goroutine, as effect
// tasks do.
type Container struct {
	mu      sync.Mutex
	reducer RootReducer
	state   atomic.Pointer[domain.Tree]

	subMu     sync.Mutex
	listeners []*subscription
	nextSubID uint64

	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

type subscription struct {
	id uint64
	fn domain.Listener
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithHooks registers lifecycle hooks for dispatch events.
func WithHooks(hooks domain.LifecycleHooks) ContainerOption {
	return func(c *Container) {
		c.hooks = hooks
	}
}

// WithLogger sets the container logger.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContainer creates a container. A nil reducer is the empty aggregate and
// a nil initial tree is an empty tree with default persistence metadata.
func NewContainer(reducer RootReducer, initial domain.Tree, opts ...ContainerOption) *Container {
	if reducer == nil {
		reducer = Combine(nil)
	}
	if initial == nil {
		initial = domain.NewTree(domain.DefaultPersistVersion)
	}
	c := &Container{
		reducer: reducer,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(&initial)
	return c
}

// GetState returns the current tree. The returned map must not be modified.
func (c *Container) GetState() domain.Tree {
	return *c.state.Load()
}

// Dispatch applies action to the current tree and notifies every listener.
// A reducer failure leaves the tree untouched, skips notification and is
// returned as a *domain.TransitionError.
func (c *Container) Dispatch(ctx context.Context, action domain.Action) error {
	if err := c.admit(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatchLocked(ctx, action)
}

// ReplaceReducer swaps the aggregate reducer and dispatches @@arbor/REPLACE so
// new slices get their initial value and dropped slices disappear. If that
// dispatch fails the previous reducer is restored.
func (c *Container) ReplaceReducer(ctx context.Context, reducer RootReducer) error {
	if reducer == nil {
		return errors.New("reducer is required")
	}
	if err := c.admit(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.reducer
	c.reducer = reducer
	if err := c.dispatchLocked(ctx, domain.NewAction(domain.ActionReplace, nil)); err != nil {
		c.reducer = previous
		return err
	}
	return nil
}

// Subscribe registers a listener called after every successful dispatch.
// Unsubscribing while a notification is in progress takes effect from the
// next dispatch.
func (c *Container) Subscribe(listener domain.Listener) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	c.listeners = append(c.listeners, &subscription{id: id, fn: listener})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			for i, s := range c.listeners {
				if s.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Container) admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if owner, ok := ctx.Value(notifyingKey{}).(*Container); ok && owner == c {
		return domain.ErrReentrantDispatch
	}
	return nil
}

func (c *Container) dispatchLocked(ctx context.Context, action domain.Action) error {
	start := time.Now()
	prev := c.GetState()

	next, err := c.reducer(prev, action)
	if err != nil {
		var te *domain.TransitionError
		if !errors.As(err, &te) {
			err = &domain.TransitionError{ActionType: action.Type, Err: err}
		}
		c.logger.WarnContext(ctx, "dispatch failed", "action", action.Type, "error", err)
		c.emitDispatch(ctx, action, start, false, err)
		return err
	}
	if next == nil {
		next = prev
	}

	changed := !sameTree(prev, next)
	if changed {
		c.state.Store(&next)
	}
	c.emitDispatch(ctx, action, start, changed, nil)

	c.subMu.Lock()
	listeners := make([]*subscription, len(c.listeners))
	copy(listeners, c.listeners)
	c.subMu.Unlock()

	lctx := context.WithValue(ctx, notifyingKey{}, c)
	for _, s := range listeners {
		s.fn(lctx, action, next)
	}
	return nil
}

func (c *Container) emitDispatch(ctx context.Context, action domain.Action, start time.Time, changed bool, err error) {
	if c.hooks.OnDispatch == nil {
		return
	}
	c.hooks.OnDispatch(ctx, &domain.DispatchEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventDispatch,
		},
		ActionType: action.Type,
		Duration:   time.Since(start),
		Changed:    changed,
		Err:        err,
	})
}
