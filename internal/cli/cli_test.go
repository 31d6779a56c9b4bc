package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/features/app"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNop()

	redisServer := miniredis.RunT(t)
	backends := map[string]func(*config.Config){
		config.BackendMemory: func(*config.Config) {},
		config.BackendFile:   func(c *config.Config) { c.Persistence.Dir = t.TempDir() },
		config.BackendRedis:  func(c *config.Config) { c.Redis.Addr = redisServer.Addr() },
	}
	for backend, setup := range backends {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Persistence.Backend = backend
			setup(&cfg)

			storage, closeFn, err := OpenStorage(ctx, cfg, logger)
			require.NoError(t, err)
			defer closeFn()

			snap := domain.NewSnapshot(1)
			snap.Slices["app"] = map[string]any{"isDarkMode": true}
			require.NoError(t, storage.Save(ctx, "root", snap))
			loaded, err := storage.Load(ctx, "root")
			require.NoError(t, err)
			assert.Equal(t, snap.Slices, loaded.Slices)
		})
	}
}

func TestOpenStorage_Middleware(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Persistence.Redact = []string{"(?i)token"}
	cfg.Persistence.EncryptionKey = hex.EncodeToString(bytes.Repeat([]byte{7}, 32))

	storage, closeFn, err := OpenStorage(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer closeFn()

	snap := domain.NewSnapshot(-1)
	snap.Slices["app"] = map[string]any{"token": "secret", "isDarkMode": true}
	require.NoError(t, storage.Save(ctx, "root", snap))

	loaded, err := storage.Load(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"token": "***", "isDarkMode": true}, loaded.Slices["app"])
}

func TestOpenStorage_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Persistence.EncryptionKey = "too-short"
	_, _, err := OpenStorage(ctx, cfg, logging.NewNop())
	assert.ErrorContains(t, err, "32 bytes")

	cfg = config.Default()
	cfg.Persistence.Redact = []string{"("}
	_, _, err = OpenStorage(ctx, cfg, logging.NewNop())
	assert.ErrorContains(t, err, "invalid redact pattern")

	cfg = config.Default()
	cfg.Persistence.Backend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"
	_, _, err = OpenStorage(ctx, cfg, logging.NewNop())
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestSnapshotMarkdown(t *testing.T) {
	snap := domain.NewSnapshot(2)
	snap.Slices["products"] = map[string]any{"loading": false}
	snap.Slices["app"] = map[string]any{"isDarkMode": true}

	md, err := SnapshotMarkdown("root", snap)
	require.NoError(t, err)
	assert.Contains(t, md, "# State `root`")
	assert.Contains(t, md, "Schema version: **2**")
	assert.Less(t, strings.Index(md, "## app"), strings.Index(md, "## products"))
	assert.Contains(t, md, `"isDarkMode": true`)

	empty, err := SnapshotMarkdown("root", domain.NewSnapshot(-1))
	require.NoError(t, err)
	assert.Contains(t, empty, "No slices persisted")
}

func TestPrintSnapshot(t *testing.T) {
	snap := domain.NewSnapshot(-1)
	snap.Slices["app"] = map[string]any{"appLoaded": true}

	var buf bytes.Buffer
	require.NoError(t, PrintSnapshot(&buf, "root", snap, nil))
	assert.JSONEq(t, `{"version":-1,"slices":{"app":{"appLoaded":true}}}`, buf.String())

	buf.Reset()
	upper := func(md string) (string, error) { return strings.ToUpper(md), nil }
	require.NoError(t, PrintSnapshot(&buf, "root", snap, upper))
	assert.Contains(t, buf.String(), "# STATE `ROOT`")
}

func TestService_Start(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Persistence.Backend = config.BackendFile
	cfg.Persistence.Dir = t.TempDir()

	svc, err := NewService(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))

	assert.Equal(t, []string{"app", "products"}, svc.App.Modules())
	assert.True(t, svc.App.State().Persist().Rehydrated)
	assert.True(t, app.Select(svc.App.State()).AppLoaded)
	require.NoError(t, svc.App.Dispatch(ctx, app.Toggle()))
	require.NoError(t, svc.Close(ctx))

	// The whitelisted app slice survives a restart.
	again, err := NewService(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer again.Close(ctx)
	require.NoError(t, again.Start(ctx))
	assert.True(t, arbor.Slice(again.App.State(), app.Key, app.State{}).IsDarkMode)
}
