package runtime

import (
	"reflect"
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
)

// RootReducer is the aggregate transition function applied by the Container.
type RootReducer func(state domain.Tree, action domain.Action) (domain.Tree, error)

// Combine builds the aggregate reducer for a key→reducer mapping.
//
// Each reducer receives only its own slice. When no slice changed and no key
// was added or dropped, the input tree itself is returned, so actions nobody
// handles leave the state referentially unchanged. Slices in the tree without
// a reducer are dropped, which is how ejected modules are purged.
//
// persist/REHYDRATE is handled here: persisted slices for registered keys
// replace the current slice before the module reducer sees the action.
func Combine(reducers map[string]domain.Reducer) RootReducer {
	keys := make([]string, 0, len(reducers))
	fns := make(map[string]domain.Reducer, len(reducers))
	for k, fn := range reducers {
		keys = append(keys, k)
		fns[k] = fn
	}
	sort.Strings(keys)

	return func(state domain.Tree, action domain.Action) (domain.Tree, error) {
		rehydrate, isRehydrate := rehydratePayload(action)

		next := make(domain.Tree, len(keys)+1)
		changed := false

		meta, hasMeta := state[domain.PersistKey].(domain.PersistMeta)
		if !hasMeta {
			meta = domain.PersistMeta{Version: domain.DefaultPersistVersion}
			changed = true
		}
		if isRehydrate && rehydrate.Initial && !meta.Rehydrated {
			meta.Rehydrated = true
			changed = true
		}
		next[domain.PersistKey] = meta

		for _, key := range keys {
			prev, had := state[key]
			input := prev
			if isRehydrate {
				if restored, ok := rehydrate.Slices[key]; ok {
					input = restored
				}
			}

			slice, err := fns[key](input, action)
			if err != nil {
				return state, &domain.TransitionError{Key: key, ActionType: action.Type, Err: err}
			}
			if !had || !domain.Identical(prev, slice) {
				changed = true
			}
			next[key] = slice
		}

		for key := range state {
			if key == domain.PersistKey {
				continue
			}
			if _, ok := fns[key]; !ok {
				changed = true
			}
		}

		if !changed {
			return state, nil
		}
		return next, nil
	}
}

func rehydratePayload(action domain.Action) (domain.RehydratePayload, bool) {
	if action.Type != domain.ActionRehydrate {
		return domain.RehydratePayload{}, false
	}
	switch p := action.Payload.(type) {
	case domain.RehydratePayload:
		return p, true
	case *domain.RehydratePayload:
		if p != nil {
			return *p, true
		}
	}
	return domain.RehydratePayload{}, false
}

// sameTree reports whether two trees are the same map value.
func sameTree(a, b domain.Tree) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}
