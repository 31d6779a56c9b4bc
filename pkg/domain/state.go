package domain

import (
	"context"
	"sort"
)

// PersistKey is the reserved tree key holding PersistMeta.
const PersistKey = "_persist"

// DefaultPersistVersion is the schema version used when none is configured.
const DefaultPersistVersion = -1

// PersistMeta tracks whether persisted state has been restored.
type PersistMeta struct {
	Version    int  `json:"version"`
	Rehydrated bool `json:"rehydrated"`
}

// Tree is the application state, keyed by module key.
// A Tree handed out by the container must be treated as immutable:
// every change produces a new map.
type Tree map[string]any

// NewTree creates the initial tree holding only the persistence metadata.
func NewTree(version int) Tree {
	return Tree{PersistKey: PersistMeta{Version: version}}
}

// Slice returns the slice owned by a module key.
func (t Tree) Slice(key string) (any, bool) {
	v, ok := t[key]
	return v, ok
}

// Persist returns the persistence metadata, or the zero value if absent.
func (t Tree) Persist() PersistMeta {
	meta, _ := t[PersistKey].(PersistMeta)
	return meta
}

// Keys returns the module keys present in the tree, sorted, excluding reserved keys.
func (t Tree) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		if k == PersistKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the tree. Slice values are shared.
func (t Tree) Clone() Tree {
	out := make(Tree, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Listener is notified after every successful dispatch with the action and the resulting tree.
type Listener func(ctx context.Context, action Action, state Tree)
