// Package products lists Fake Store products.
package products

import (
	"context"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/features"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/effect"
	"github.com/aretw0/arbor/pkg/httpclient"
)

// Key is the module key of the products slice.
const Key = "products"

// Action types.
var (
	Fetch        = domain.ActionType(Key, "FETCH")
	FetchSuccess = domain.ActionType(Key, "FETCH_SUCCESS")
	FetchError   = domain.ActionType(Key, "FETCH_ERROR")
)

// State is the products slice.
type State struct {
	Items   []Product `json:"items"`
	Loading bool      `json:"loading"`
	Error   string    `json:"error"`
}

// Reducer returns the products slice reducer.
func Reducer() domain.Reducer {
	return domain.ReducerFor(State{}, func(s State, a domain.Action) (State, error) {
		switch a.Type {
		case Fetch:
			return State{Items: s.Items, Loading: true}, nil
		case FetchSuccess:
			items, err := domain.Coerce(a.Payload, []Product(nil))
			if err != nil {
				return s, err
			}
			return State{Items: items}, nil
		case FetchError:
			msg, _ := a.Payload.(string)
			return State{Items: s.Items, Error: msg}, nil
		}
		return s, nil
	})
}

// Saga loads the product list from url on every products/FETCH.
func Saga(client *httpclient.Client, url string) effect.Saga {
	return effect.TakeLatest(Fetch, func(ctx context.Context, io *effect.IO, _ domain.Action) error {
		items, err := FetchAll(ctx, client, url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return io.Put(ctx, domain.NewAction(FetchError, err.Error()))
		}
		return io.Put(ctx, domain.NewAction(FetchSuccess, items))
	})
}

// FetchAll requests and validates the product list.
func FetchAll(ctx context.Context, client *httpclient.Client, url string) ([]Product, error) {
	var raw any
	if err := client.Get(ctx, url, &raw); err != nil {
		return nil, err
	}
	var items []APIProduct
	if err := features.DecodeStrict(raw, &items); err != nil {
		return nil, err
	}
	return FromAPI(items), nil
}

// Module returns the products module.
func Module(client *httpclient.Client, url string) arbor.Module {
	return arbor.Module{Key: Key, Reducer: Reducer(), Saga: Saga(client, url)}
}

// Select returns the products slice of tree, or the initial state.
func Select(tree domain.Tree) State {
	return arbor.Slice(tree, Key, State{})
}
