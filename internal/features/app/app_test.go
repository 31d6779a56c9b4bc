package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReducer(t *testing.T) {
	r := Reducer()
	apply := func(s any, a domain.Action) State {
		t.Helper()
		next, err := r(s, a)
		require.NoError(t, err)
		return next.(State)
	}

	s := apply(nil, domain.NewAction("other/ACTION", nil))
	assert.Equal(t, State{}, s)

	s = apply(State{Error: "old"}, Load())
	assert.True(t, s.Loading)
	assert.Empty(t, s.Error)

	s = apply(s, Success(Post{ID: 1, Title: "t"}))
	assert.False(t, s.Loading)
	require.NotNil(t, s.Data)
	assert.Equal(t, 1, s.Data.ID)

	s = apply(s, Failure("boom"))
	assert.Equal(t, "boom", s.Error)

	s = apply(s, Toggle())
	assert.True(t, s.IsDarkMode)
	s = apply(s, Toggle())
	assert.False(t, s.IsDarkMode)

	s = apply(s, Loaded())
	assert.True(t, s.AppLoaded)
}

func TestReducer_RehydratedState(t *testing.T) {
	next, err := Reducer()(map[string]any{
		"data":       map[string]any{"userId": 1.0, "id": 2.0, "title": "t", "body": "b"},
		"isDarkMode": true,
	}, domain.NewAction(domain.ActionRehydrate, nil))
	require.NoError(t, err)

	s := next.(State)
	assert.True(t, s.IsDarkMode)
	require.NotNil(t, s.Data)
	assert.Equal(t, Post{UserID: 1, ID: 2, Title: "t", Body: "b"}, *s.Data)
}

func newServer(t *testing.T, handler http.HandlerFunc) *httpclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return httpclient.New(httpclient.WithBaseURL(srv.URL), httpclient.WithTimeout(time.Second))
}

func install(t *testing.T, client *httpclient.Client) *arbor.App {
	t.Helper()
	a := arbor.New()
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	require.NoError(t, a.Install(context.Background(), Module(client)))
	return a
}

func TestSaga_Success(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PostPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"userId":1,"id":1,"title":"sunt aut facere","body":"quia et suscipit"}`))
	})
	a := install(t, client)

	require.NoError(t, a.Dispatch(context.Background(), Load()))
	require.Eventually(t, func() bool { return Select(a.State()).Data != nil }, time.Second, 5*time.Millisecond)

	s := Select(a.State())
	assert.False(t, s.Loading)
	assert.Empty(t, s.Error)
	assert.Equal(t, "sunt aut facere", s.Data.Title)
}

func TestSaga_Failures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   string
	}{
		"schema mismatch": {http.StatusOK, `{"userId":1,"id":"one","title":"t","body":"b"}`, "invalid API response"},
		"missing field":   {http.StatusOK, `{"userId":1,"id":1,"title":"t"}`, "body"},
		"server error":    {http.StatusInternalServerError, `{"message":"db down"}`, "db down"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			a := install(t, client)

			require.NoError(t, a.Dispatch(context.Background(), Load()))
			require.Eventually(t, func() bool { return Select(a.State()).Error != "" }, time.Second, 5*time.Millisecond)

			s := Select(a.State())
			assert.False(t, s.Loading)
			assert.Nil(t, s.Data)
			assert.Contains(t, s.Error, tc.want)
		})
	}
}

func TestSaga_LatestRequestWins(t *testing.T) {
	var calls atomic.Int32
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// The first request hangs until the client gives up on it.
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"userId":1,"id":2,"title":"second","body":"b"}`))
	})
	a := install(t, client)
	ctx := context.Background()

	require.NoError(t, a.Dispatch(ctx, Load()))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, a.Dispatch(ctx, Load()))

	require.Eventually(t, func() bool { return Select(a.State()).Data != nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "second", Select(a.State()).Data.Title)
	assert.Empty(t, Select(a.State()).Error, "the superseded request reports nothing")
}
