package httpclient_test

import (
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type post struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/posts/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":1,"id":1,"title":"hello","body":"world"}`))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		in["method"] = r.Method
		in["auth"] = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(in)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"post not found","code":"NOT_FOUND"}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetDecodesJSON(t *testing.T) {
	srv := newServer(t)
	c := httpclient.New(httpclient.WithBaseURL(srv.URL + "/"))

	var p post
	require.NoError(t, c.Get(context.Background(), "/posts/1", &p))
	assert.Equal(t, post{UserID: 1, ID: 1, Title: "hello", Body: "world"}, p)
}

func TestClient_PostSendsJSONAndHeaders(t *testing.T) {
	srv := newServer(t)
	c := httpclient.New()

	var out map[string]any
	err := c.Post(context.Background(), srv.URL+"/echo", map[string]any{"name": "cart"}, &out, httpclient.Bearer("secret"))
	require.NoError(t, err)
	assert.Equal(t, "cart", out["name"])
	assert.Equal(t, http.MethodPost, out["method"])
	assert.Equal(t, "Bearer secret", out["auth"])

	require.NoError(t, c.Put(context.Background(), srv.URL+"/echo", map[string]any{}, &out))
	assert.Equal(t, http.MethodPut, out["method"])
	require.NoError(t, c.Delete(context.Background(), srv.URL+"/echo", nil))
}

func TestClient_TextFallback(t *testing.T) {
	srv := newServer(t)
	c := httpclient.New(httpclient.WithBaseURL(srv.URL))

	var anything any
	require.NoError(t, c.Get(context.Background(), "text", &anything))
	assert.Equal(t, "plain text", anything)

	var raw string
	require.NoError(t, c.Get(context.Background(), "posts/1", &raw))
	assert.Contains(t, raw, `"title":"hello"`)

	var p post
	err := c.Get(context.Background(), "text", &p)
	assert.True(t, httpclient.IsCode(err, httpclient.CodeUnknown))
}

func TestClient_HTTPErrors(t *testing.T) {
	srv := newServer(t)
	c := httpclient.New(httpclient.WithBaseURL(srv.URL))

	err := c.Get(context.Background(), "missing", nil)
	var apiErr *httpclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "post not found", apiErr.Message)
	assert.Contains(t, err.Error(), "HTTP 404")

	err = c.Get(context.Background(), "broken", nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, httpclient.CodeHTTP, apiErr.Code)
	assert.Equal(t, "Internal Server Error", apiErr.Message)
	assert.Contains(t, apiErr.Body, "boom")
}

func TestClient_Timeout(t *testing.T) {
	srv := newServer(t)
	c := httpclient.New(httpclient.WithBaseURL(srv.URL), httpclient.WithTimeout(time.Second))

	err := c.Get(context.Background(), "slow", nil, httpclient.Timeout(20*time.Millisecond))
	assert.True(t, httpclient.IsCode(err, httpclient.CodeTimeout), "got %v", err)
}

func TestClient_CancellationIsNotAnAPIError(t *testing.T) {
	srv := newServer(t)
	c := httpclient.New(httpclient.WithBaseURL(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := c.Get(ctx, "slow", nil)
	assert.ErrorIs(t, err, context.Canceled)
	var apiErr *httpclient.APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClient_NetworkError(t *testing.T) {
	c := httpclient.New(httpclient.WithBaseURL("http://127.0.0.1:1"))
	err := c.Get(context.Background(), "nothing", nil)
	assert.True(t, httpclient.IsCode(err, httpclient.CodeNetwork), "got %v", err)
}
