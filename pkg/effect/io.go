package effect

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// ErrClosed is returned by Take once the task's action stream has been closed.
var ErrClosed = errors.New("action stream closed")

// Store is the part of the state container an effect handler talks to.
type Store interface {
	Dispatch(ctx context.Context, action domain.Action) error
	GetState() domain.Tree
	Subscribe(listener domain.Listener) (unsubscribe func())
}

// IO is the environment handed to a running Saga.
// Take and Put are its suspension points: both observe ctx cancellation.
type IO struct {
	key    string
	taskID string
	store  Store
	box    *mailbox
}

// Key returns the module key the task runs under.
func (io *IO) Key() string { return io.key }

// TaskID returns the identifier of the running task.
func (io *IO) TaskID() string { return io.taskID }

// Take blocks until an action matching one of the patterns is dispatched.
// Actions dispatched after the task started are buffered, so none is lost
// while the handler is busy; non-matching actions are discarded as they are
// passed over. With no patterns every action matches.
func (io *IO) Take(ctx context.Context, patterns ...string) (domain.Action, error) {
	return io.box.next(ctx, func(typ string) bool {
		if len(patterns) == 0 {
			return true
		}
		for _, p := range patterns {
			if Match(p, typ) {
				return true
			}
		}
		return false
	})
}

// Put dispatches an action into the state container.
// It refuses to dispatch once ctx is done, so a cancelled handler never
// reports follow-up actions.
func (io *IO) Put(ctx context.Context, action domain.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return io.store.Dispatch(ctx, action)
}

// State returns the container's state at call time.
func (io *IO) State() domain.Tree {
	return io.store.GetState()
}

// Select returns one slice of the current state.
func (io *IO) Select(key string) (any, bool) {
	return io.store.GetState().Slice(key)
}

// Match reports whether an action type matches a pattern.
// "*" matches everything, "ns/*" matches every action of a namespace,
// anything else must match exactly.
func Match(pattern, typ string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "/*"):
		return strings.HasPrefix(typ, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == typ
	}
}

// mailbox is an unbounded FIFO of actions fed synchronously by the container.
type mailbox struct {
	mu     sync.Mutex
	queue  []domain.Action
	notify chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(a domain.Action) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, a)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) next(ctx context.Context, match func(string) bool) (domain.Action, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Action{}, err
		}

		m.mu.Lock()
		for len(m.queue) > 0 {
			a := m.queue[0]
			m.queue[0] = domain.Action{}
			m.queue = m.queue[1:]
			if match(a.Type) {
				m.mu.Unlock()
				return a, nil
			}
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return domain.Action{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return domain.Action{}, ctx.Err()
		case <-m.notify:
		}
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}
