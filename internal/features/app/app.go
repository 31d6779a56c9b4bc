// Package app is the application shell module: theme, boot flag and a demo
// request against JSONPlaceholder.
package app

import (
	"context"
	"errors"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/features"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/effect"
	"github.com/aretw0/arbor/pkg/httpclient"
)

// Key is the module key of the app slice.
const Key = "app"

// PostPath is the demo endpoint, relative to the API base URL.
const PostPath = "/posts/1"

// Action types.
var (
	DefaultAction        = domain.ActionType(Key, "DEFAULT_ACTION")
	DefaultActionSuccess = domain.ActionType(Key, "DEFAULT_ACTION_SUCCESS")
	DefaultActionError   = domain.ActionType(Key, "DEFAULT_ACTION_ERROR")
	ToggleTheme          = domain.ActionType(Key, "TOGGLE_THEME")
	SetAppLoaded         = domain.ActionType(Key, "SET_APP_LOADED")
)

// Post is the JSONPlaceholder post payload.
type Post struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// State is the app slice.
type State struct {
	Data       *Post  `json:"data"`
	Loading    bool   `json:"loading"`
	Error      string `json:"error"`
	IsDarkMode bool   `json:"isDarkMode"`
	Token      string `json:"token"`
	AppLoaded  bool   `json:"appLoaded"`
}

func Load() domain.Action              { return domain.NewAction(DefaultAction, nil) }
func Success(p Post) domain.Action     { return domain.NewAction(DefaultActionSuccess, p) }
func Failure(msg string) domain.Action { return domain.NewAction(DefaultActionError, msg) }
func Toggle() domain.Action            { return domain.NewAction(ToggleTheme, nil) }
func Loaded() domain.Action            { return domain.NewAction(SetAppLoaded, nil) }

// Reducer returns the app slice reducer.
func Reducer() domain.Reducer {
	return domain.ReducerFor(State{}, reduce)
}

func reduce(s State, a domain.Action) (State, error) {
	switch a.Type {
	case DefaultAction:
		s.Loading = true
		s.Error = ""
	case DefaultActionSuccess:
		post, err := postFrom(a.Payload)
		if err != nil {
			return s, err
		}
		s.Loading = false
		s.Data = &post
	case DefaultActionError:
		s.Loading = false
		s.Error = errorMessage(a.Payload)
	case ToggleTheme:
		s.IsDarkMode = !s.IsDarkMode
	case SetAppLoaded:
		s.AppLoaded = true
	}
	return s, nil
}

func postFrom(payload any) (Post, error) {
	switch p := payload.(type) {
	case Post:
		return p, nil
	case *Post:
		if p != nil {
			return *p, nil
		}
		return Post{}, errors.New("post payload is nil")
	}
	return domain.Coerce(payload, Post{})
}

func errorMessage(payload any) string {
	switch p := payload.(type) {
	case string:
		return p
	case error:
		return p.Error()
	}
	return "An error occurred"
}

// Saga fetches the demo post for every DEFAULT_ACTION, dropping a request
// still in flight when a newer one arrives.
func Saga(client *httpclient.Client) effect.Saga {
	return effect.TakeLatest(DefaultAction, func(ctx context.Context, io *effect.IO, _ domain.Action) error {
		post, err := FetchPost(ctx, client)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return io.Put(ctx, Failure(err.Error()))
		}
		return io.Put(ctx, Success(post))
	})
}

// FetchPost requests the demo post and validates every field.
func FetchPost(ctx context.Context, client *httpclient.Client) (Post, error) {
	var raw any
	if err := client.Get(ctx, PostPath, &raw); err != nil {
		return Post{}, err
	}
	var post Post
	if err := features.DecodeStrict(raw, &post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// Module returns the app module.
func Module(client *httpclient.Client) arbor.Module {
	return arbor.Module{Key: Key, Reducer: Reducer(), Saga: Saga(client)}
}

// Select returns the app slice of tree, or the initial state.
func Select(tree domain.Tree) State {
	return arbor.Slice(tree, Key, State{})
}
