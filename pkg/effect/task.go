package effect

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
)

// Saga is a cooperative effect handler. It runs until it returns or until ctx
// is cancelled; cancellation is observed at IO.Take, IO.Put and any other
// ctx-aware call the handler makes.
type Saga func(ctx context.Context, io *IO) error

// Option configures a spawned task.
type Option func(*Task)

// WithOnError registers a callback for failures that were not caused by
// cancellation. It runs on the task goroutine before Done is closed.
func WithOnError(fn func(t *Task, err error)) Option {
	return func(t *Task) {
		t.onError = fn
	}
}

// WithOnExit registers a callback that runs on the task goroutine after the
// handler returned, before Done is closed. err is the terminal error (nil when
// canceled).
func WithOnExit(fn func(t *Task, err error, canceled bool)) Option {
	return func(t *Task) {
		t.onExit = fn
	}
}

// Task is a handle to a running Saga: a cancellation token, a completion
// signal and the handler's terminal error.
type Task struct {
	id        string
	key       string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Written by the task goroutine before done is closed.
	err      error
	cause    error
	canceled bool

	onError func(*Task, error)
	onExit  func(*Task, error, bool)
}

// Spawn subscribes a fresh action stream to store and runs saga on its own goroutine.
// The subscription happens before Spawn returns, so every action dispatched
// afterwards is visible to the handler.
func Spawn(parent context.Context, key string, saga Saga, store Store, opts ...Option) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		id:        uuid.NewString(),
		key:       key,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	box := newMailbox()
	unsubscribe := store.Subscribe(func(_ context.Context, action domain.Action, _ domain.Tree) {
		box.push(action)
	})
	io := &IO{key: key, taskID: t.id, store: store, box: box}

	go t.run(saga, io, func() {
		unsubscribe()
		box.close()
	})
	return t
}

func (t *Task) run(saga Saga, io *IO, detach func()) {
	defer close(t.done)

	err := t.invoke(saga, io)
	// Any termination after the token fired counts as cancellation-induced.
	canceled := t.ctx.Err() != nil
	detach()
	t.cancel()

	if canceled {
		t.canceled = true
		t.cause = err
		err = nil
	}
	t.err = err

	if err != nil && t.onError != nil {
		t.onError(t, err)
	}
	if t.onExit != nil {
		t.onExit(t, err, canceled)
	}
}

func (t *Task) invoke(saga Saga, io *IO) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect %q panicked: %v", t.key, r)
		}
	}()
	return saga(t.ctx, io)
}

// ID returns the unique task identifier.
func (t *Task) ID() string { return t.id }

// Key returns the module key the task runs under.
func (t *Task) Key() string { return t.key }

// StartedAt returns when the task was spawned.
func (t *Task) StartedAt() time.Time { return t.startedAt }

// Cancel requests cooperative cancellation. It does not wait.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the handler has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Running reports whether the handler has not returned yet.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the task terminates or ctx is done.
// It returns the handler's error, which is nil for a cancelled task.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the terminal error once the task is done, nil before.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Canceled reports whether the task terminated because of cancellation.
func (t *Task) Canceled() bool {
	select {
	case <-t.done:
		return t.canceled
	default:
		return false
	}
}

// Cause returns the error the handler returned while being cancelled, if any.
// It is informational only; cancellation is never reported through Err.
func (t *Task) Cause() error {
	select {
	case <-t.done:
		return t.cause
	default:
		return nil
	}
}
