package http

import (
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Event is one state change pushed to /events subscribers.
type Event struct {
	Action string           `json:"action"`
	Diff   *domain.TreeDiff `json:"diff"`
}

type subscriber struct {
	ch    chan Event
	watch []string
}

// StreamManager fans state-change events out to SSE clients.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a client interested in the given module keys
// (all keys when watch is empty). The returned function unsubscribes.
func (sm *StreamManager) Subscribe(watch []string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 10), watch: watch}

	sm.mu.Lock()
	sm.subscribers[sub] = struct{}{}
	sm.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, sub)
			close(sub.ch)
		})
	}
}

// Broadcast delivers an event to every interested subscriber without blocking.
// Slow clients lose events.
func (sm *StreamManager) Broadcast(ev Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for sub := range sm.subscribers {
		if len(sub.watch) > 0 && !ev.Diff.Touches(sub.watch...) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sm.logger.Warn("SSE client buffer full, dropping event", "action", ev.Action)
		}
	}
}

// Len returns the number of connected subscribers.
func (sm *StreamManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}
