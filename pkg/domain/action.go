package domain

import "strings"

// Action is an immutable event record passed through the state container.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// NewAction builds an action with the given type and payload.
func NewAction(typ string, payload any) Action {
	return Action{Type: typ, Payload: payload}
}

// ActionType namespaces an action name under a module key ("cart" + "ADD" -> "cart/ADD").
func ActionType(key, name string) string {
	return key + "/" + name
}

// Namespace returns the module key part of a namespaced action type.
// Types without a separator are returned unchanged.
func Namespace(typ string) string {
	if i := strings.IndexByte(typ, '/'); i > 0 {
		return typ[:i]
	}
	return typ
}

// IsReserved reports whether an action type belongs to the runtime itself.
// Reserved actions cannot be dispatched from outside the process (e.g. over HTTP).
func IsReserved(typ string) bool {
	return strings.HasPrefix(typ, ReservedPrefix) || strings.HasPrefix(typ, PersistPrefix)
}

// Runtime action types.
const (
	// ReservedPrefix marks runtime-owned action types.
	ReservedPrefix = "@@"

	// PersistPrefix marks persistence action types.
	PersistPrefix = "persist/"

	// ActionReplace is dispatched after the aggregate reducer is swapped so new
	// slices are initialised and ejected slices are purged.
	ActionReplace = "@@arbor/REPLACE"

	// ActionEffectError is dispatched when an effect handler fails outside of cancellation.
	// Payload: EffectErrorPayload
	ActionEffectError = "@@effect/ERROR"

	// ActionRehydrate merges persisted slices into the tree.
	// Payload: RehydratePayload
	ActionRehydrate = "persist/REHYDRATE"
)

// EffectErrorPayload describes an effect handler failure.
type EffectErrorPayload struct {
	Key     string `json:"key"`
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message"`
}

// RehydratePayload carries persisted slices back into the tree.
type RehydratePayload struct {
	// Slices maps module keys to their persisted representation.
	Slices map[string]any `json:"slices,omitempty"`

	// Version is the schema version the slices were stored with.
	Version int `json:"version"`

	// Initial marks the startup rehydration, which flips PersistMeta.Rehydrated.
	Initial bool `json:"initial,omitempty"`
}
