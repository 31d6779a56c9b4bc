package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventDispatch         EventType = "dispatch"
	EventModuleRegistered EventType = "module_registered"
	EventModuleEjected    EventType = "module_ejected"
	EventTaskStart        EventType = "task_start"
	EventTaskStop         EventType = "task_stop"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// DispatchEvent describes one completed (or failed) dispatch.
type DispatchEvent struct {
	EventBase
	ActionType string        `json:"action_type"`
	Duration   time.Duration `json:"duration"`
	Changed    bool          `json:"changed"`
	Err        error         `json:"-"`
}

// ModuleEvent describes a module entering or leaving the registries.
type ModuleEvent struct {
	EventBase
	Key     string `json:"key"`
	Reducer bool   `json:"reducer"`
	Saga    bool   `json:"saga"`
}

// TaskEvent describes an effect task starting or stopping.
type TaskEvent struct {
	EventBase
	Key      string `json:"key"`
	TaskID   string `json:"task_id"`
	Canceled bool   `json:"canceled,omitempty"`
	Err      error  `json:"-"`
}

// LifecycleHooks defines callbacks for runtime observability.
// Hooks run synchronously on the goroutine that produced the event and must not block.
type LifecycleHooks struct {
	OnDispatch         func(context.Context, *DispatchEvent)
	OnModuleRegistered func(context.Context, *ModuleEvent)
	OnModuleEjected    func(context.Context, *ModuleEvent)
	OnTaskStart        func(context.Context, *TaskEvent)
	OnTaskStop         func(context.Context, *TaskEvent)
}

// MergeHooks combines several hook sets; each callback fires in argument order.
func MergeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var merged LifecycleHooks
	for _, h := range hooks {
		merged.OnDispatch = chain(merged.OnDispatch, h.OnDispatch)
		merged.OnModuleRegistered = chain(merged.OnModuleRegistered, h.OnModuleRegistered)
		merged.OnModuleEjected = chain(merged.OnModuleEjected, h.OnModuleEjected)
		merged.OnTaskStart = chain(merged.OnTaskStart, h.OnTaskStart)
		merged.OnTaskStop = chain(merged.OnTaskStop, h.OnTaskStop)
	}
	return merged
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
