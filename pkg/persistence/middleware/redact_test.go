package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	User     string            `json:"user"`
	Token    string            `json:"token"`
	Profiles []map[string]any  `json:"profiles"`
	Extra    map[string]string `json:"extra"`
}

func TestRedactMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewRedactMiddleware([]string{"^never-matches$"})
	require.NoError(t, err)
	ports.RunStorageContract(t, mw(memory.NewStore()))
}

func TestRedactMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewRedactMiddleware([]string{"(?i)token", "password"})
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	original := session{
		User:     "jdoe",
		Token:    "secret123",
		Profiles: []map[string]any{{"name": "work", "password": "hunter2"}},
		Extra:    map[string]string{"refreshToken": "r", "theme": "dark"},
	}
	snap := domain.NewSnapshot(-1)
	snap.Slices["app"] = original
	require.NoError(t, store.Save(ctx, "root", snap))

	assert.Equal(t, "secret123", original.Token, "the in-memory value is untouched")

	stored, err := underlying.Load(ctx, "root")
	require.NoError(t, err)
	app := stored.Slices["app"].(map[string]any)
	assert.Equal(t, "jdoe", app["user"])
	assert.Equal(t, middleware.Mask, app["token"])

	profile := app["profiles"].([]any)[0].(map[string]any)
	assert.Equal(t, middleware.Mask, profile["password"])
	assert.Equal(t, "work", profile["name"])

	extra := app["extra"].(map[string]any)
	assert.Equal(t, middleware.Mask, extra["refreshToken"])
	assert.Equal(t, "dark", extra["theme"])
}

func TestRedactMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewRedactMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	underlying := memory.NewStore()
	redact, err := middleware.NewRedactMiddleware([]string{"token"})
	require.NoError(t, err)
	key := generateKey(t)
	store := middleware.Chain(underlying, redact, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	ctx := context.Background()

	snap := domain.NewSnapshot(-1)
	snap.Slices["app"] = map[string]any{"token": "abc", "isDarkMode": true}
	require.NoError(t, store.Save(ctx, "root", snap))

	stored, err := underlying.Load(ctx, "root")
	require.NoError(t, err)
	assert.Contains(t, stored.Slices, "__encrypted__")

	loaded, err := store.Load(ctx, "root")
	require.NoError(t, err)
	app := loaded.Slices["app"].(map[string]any)
	assert.Equal(t, middleware.Mask, app["token"])
	assert.Equal(t, true, app["isDarkMode"])
}
