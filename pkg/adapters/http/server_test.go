package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp drives a real container with a counter and a todo module.
type testApp struct {
	*runtime.Container
	reducers *runtime.ReducerRegistry
}

func (a *testApp) State() domain.Tree { return a.GetState() }
func (a *testApp) Modules() []string  { return a.reducers.Keys() }

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	c := runtime.NewContainer(nil, nil)
	reg := runtime.NewReducerRegistry(c)
	ctx := context.Background()

	_, err := reg.Register(ctx, "counter", domain.ReducerFor(0, func(n int, a domain.Action) (int, error) {
		switch a.Type {
		case "counter/INC":
			return n + 1, nil
		case "counter/FAIL":
			return n, assert.AnError
		}
		return n, nil
	}))
	require.NoError(t, err)
	_, err = reg.Register(ctx, "todo", domain.ReducerFor([]string{}, func(s []string, a domain.Action) ([]string, error) {
		if a.Type == "todo/ADD" {
			item, _ := a.Payload.(string)
			return append(append([]string{}, s...), item), nil
		}
		return s, nil
	}))
	require.NoError(t, err)
	return &testApp{Container: c, reducers: reg}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDispatch(t *testing.T) {
	app := newTestApp(t)
	srv := NewServer(app)
	defer srv.Close()

	t.Run("applies the action and returns the state", func(t *testing.T) {
		w := do(t, srv, http.MethodPost, "/dispatch", `{"type":"counter/INC"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var state map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.EqualValues(t, 1, state["counter"])
		assert.Equal(t, 1, app.State()["counter"])
	})

	t.Run("reserved types are rejected", func(t *testing.T) {
		for _, typ := range []string{domain.ActionReplace, domain.ActionRehydrate, domain.ActionEffectError} {
			w := do(t, srv, http.MethodPost, "/dispatch", `{"type":"`+typ+`"}`)
			assert.Equal(t, http.StatusBadRequest, w.Code, typ)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/dispatch", `{`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/dispatch", `{"type":"  "}`).Code)
	})

	t.Run("transition error is a server error", func(t *testing.T) {
		w := do(t, srv, http.MethodPost, "/dispatch", `{"type":"counter/FAIL"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "counter/FAIL")
	})
}

func TestReadEndpoints(t *testing.T) {
	app := newTestApp(t)
	srv := NewServer(app, WithVersion("1.2.3"))
	defer srv.Close()

	w := do(t, srv, http.MethodGet, "/modules", "")
	assert.JSONEq(t, `{"modules":["counter","todo"]}`, w.Body.String())

	w = do(t, srv, http.MethodGet, "/state/todo", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, srv, http.MethodGet, "/state/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodGet, "/info", "")
	assert.JSONEq(t, `{"app":"arbor","version":"1.2.3"}`, w.Body.String())

	w = do(t, srv, http.MethodOptions, "/dispatch", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth_WaitsForRehydration(t *testing.T) {
	app := newTestApp(t)
	srv := NewServer(app)
	defer srv.Close()

	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/healthz", "").Code)

	require.NoError(t, app.Dispatch(context.Background(), domain.NewAction(domain.ActionRehydrate, domain.RehydratePayload{Initial: true})))
	w := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","rehydrated":true}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(newTestApp(t), WithRateLimit(0.001, 2))
	defer srv.Close()

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/dispatch", `{"type":"counter/INC"}`).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/dispatch", `{"type":"counter/INC"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodPost, "/dispatch", `{"type":"counter/INC"}`).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/state", "").Code, "reads are not throttled")
}

func TestMetricsMount(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("arbor_dispatch_total 1"))
	})
	srv := NewServer(newTestApp(t), WithMetrics(metrics))
	defer srv.Close()

	w := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Contains(t, w.Body.String(), "arbor_dispatch_total")
}

func TestSubscribeEvents_FiltersByModule(t *testing.T) {
	app := newTestApp(t)
	srv := NewServer(app)
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?watch=todo", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func() string {
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					return ""
				}
				if strings.HasPrefix(l, "data: ") {
					return strings.TrimPrefix(l, "data: ")
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no event received")
				return ""
			}
		}
	}
	assert.Equal(t, "connected", next())

	require.Eventually(t, func() bool { return srv.streams.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, app.Dispatch(ctx, domain.NewAction("counter/INC", nil)))
	require.NoError(t, app.Dispatch(ctx, domain.NewAction("todo/ADD", "milk")))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(next()), &ev))
	assert.Equal(t, "todo/ADD", ev.Action)
	assert.Equal(t, []string{"todo"}, ev.Diff.Changed)
}
