package domain

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Reducer computes the next slice from the previous slice and an action.
// It is called with a nil state to produce the initial slice and must return
// the previous value unchanged for actions it does not handle.
type Reducer func(state any, action Action) (any, error)

// ReducerFor adapts a typed reducer to Reducer.
//
// A nil state becomes initial. A state of a different representation, such as
// the map produced by decoding a persisted snapshot, is decoded into S using
// the json field names.
func ReducerFor[S any](initial S, fn func(state S, action Action) (S, error)) Reducer {
	return func(state any, action Action) (any, error) {
		current, err := Coerce(state, initial)
		if err != nil {
			return nil, err
		}
		return fn(current, action)
	}
}

// Coerce converts a slice value into S, falling back to fallback for nil.
func Coerce[S any](state any, fallback S) (S, error) {
	switch s := state.(type) {
	case nil:
		return fallback, nil
	case S:
		return s, nil
	}

	out := fallback
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return fallback, fmt.Errorf("failed to build slice decoder: %w", err)
	}
	if err := dec.Decode(state); err != nil {
		return fallback, fmt.Errorf("failed to decode slice of type %T: %w", state, err)
	}
	return out, nil
}

// Identical reports whether two slice values are the same for change detection.
// Reference types compare by identity, comparable values by equality, and
// anything else structurally.
func Identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.UnsafePointer() == vb.UnsafePointer()
	case reflect.Slice:
		return va.UnsafePointer() == vb.UnsafePointer() && va.Len() == vb.Len()
	}
	if va.Comparable() {
		return va.Equal(vb)
	}
	return reflect.DeepEqual(a, b)
}
