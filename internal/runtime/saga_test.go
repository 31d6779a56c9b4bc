package runtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/effect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type actionLog struct {
	mu      sync.Mutex
	actions []domain.Action
}

func (l *actionLog) listen(_ context.Context, a domain.Action, _ domain.Tree) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
}

func (l *actionLog) ofType(typ string) []domain.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Action
	for _, a := range l.actions {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func TestSagaRegistry_FetchScenario(t *testing.T) {
	ctx := context.Background()
	c := newCartContainer(t)
	log := &actionLog{}
	c.Subscribe(log.listen)
	sagas := runtime.NewSagaRegistry(ctx, c)

	fetch := effect.TakeLatest("cart/FETCH", func(ctx context.Context, io *effect.IO, a domain.Action) error {
		// mocked request
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
		return io.Put(ctx, domain.NewAction("cart/FETCH_SUCCESS", []string{"apple"}))
	})
	_, err := sagas.Start(ctx, "cart", fetch)
	require.NoError(t, err)

	require.NoError(t, c.Dispatch(ctx, domain.NewAction("cart/FETCH", nil)))
	require.Eventually(t, func() bool {
		return len(log.ofType("cart/FETCH_SUCCESS")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, log.ofType(domain.ActionEffectError))
	require.NoError(t, sagas.Shutdown(ctx))
}

func TestSagaRegistry_CancelMidAwait(t *testing.T) {
	ctx := context.Background()
	c := newCartContainer(t)
	log := &actionLog{}
	c.Subscribe(log.listen)
	sagas := runtime.NewSagaRegistry(ctx, c)

	started := make(chan struct{})
	task, err := sagas.Start(ctx, "cart", func(ctx context.Context, io *effect.IO) error {
		close(started)
		select {
		case <-time.After(5 * time.Second):
			return io.Put(ctx, domain.NewAction("cart/FETCH_SUCCESS", nil))
		case <-ctx.Done():
			return errors.New("request aborted")
		}
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, sagas.Cancel(ctx, "cart"))
	assert.False(t, task.Running())
	assert.NoError(t, task.Err())
	assert.True(t, task.Canceled())
	assert.Empty(t, log.ofType(domain.ActionEffectError))
	assert.Empty(t, log.ofType("cart/FETCH_SUCCESS"))
	assert.False(t, sagas.Running("cart"))
	assert.Empty(t, sagas.Keys())
}

func TestSagaRegistry_FailureBecomesAction(t *testing.T) {
	ctx := context.Background()
	c := newCartContainer(t)
	log := &actionLog{}
	c.Subscribe(log.listen)
	sagas := runtime.NewSagaRegistry(ctx, c)

	task, err := sagas.Start(ctx, "cart", func(ctx context.Context, io *effect.IO) error {
		return errors.New("backend unavailable")
	})
	require.NoError(t, err)
	<-task.Done()

	errs := log.ofType(domain.ActionEffectError)
	require.Len(t, errs, 1)
	payload := errs[0].Payload.(domain.EffectErrorPayload)
	assert.Equal(t, "cart", payload.Key)
	assert.Equal(t, task.ID(), payload.TaskID)
	assert.Equal(t, "backend unavailable", payload.Message)
}

func TestSagaRegistry_RestartNeverOverlaps(t *testing.T) {
	ctx := context.Background()
	c := newCartContainer(t)
	sagas := runtime.NewSagaRegistry(ctx, c)

	var active, maxActive atomic.Int32
	saga := func(ctx context.Context, io *effect.IO) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		<-ctx.Done()
		time.Sleep(time.Millisecond)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sagas.Start(ctx, "cart", saga)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.True(t, sagas.Running("cart"))
	require.NoError(t, sagas.Shutdown(ctx))
	assert.Zero(t, active.Load())
}

func TestSagaRegistry_CancelTimeout(t *testing.T) {
	ctx := context.Background()
	c := newCartContainer(t)
	sagas := runtime.NewSagaRegistry(ctx, c, runtime.WithCancelTimeout(20*time.Millisecond))

	release := make(chan struct{})
	stubborn, err := sagas.Start(ctx, "cart", func(ctx context.Context, io *effect.IO) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	_, err = sagas.Start(ctx, "cart", func(ctx context.Context, io *effect.IO) error {
		<-ctx.Done()
		return nil
	})
	require.ErrorIs(t, err, domain.ErrCancelTimeout)

	current, ok := sagas.Lookup("cart")
	require.True(t, ok)
	assert.Equal(t, stubborn.ID(), current.ID(), "the old entry is kept")

	close(release)
	next, err := sagas.Start(ctx, "cart", func(ctx context.Context, io *effect.IO) error {
		<-ctx.Done()
		return nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, stubborn.ID(), next.ID())
	assert.True(t, stubborn.Canceled())
	require.NoError(t, sagas.Shutdown(ctx))
}

func TestSagaRegistry_Hooks(t *testing.T) {
	ctx := context.Background()
	c := newCartContainer(t)

	var mu sync.Mutex
	var events []domain.EventType
	record := func(_ context.Context, e *domain.TaskEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	}
	sagas := runtime.NewSagaRegistry(ctx, c, runtime.WithSagaHooks(domain.LifecycleHooks{
		OnTaskStart: record,
		OnTaskStop:  record,
	}))

	_, err := sagas.Start(ctx, "cart", func(ctx context.Context, io *effect.IO) error {
		_, err := io.Take(ctx, "never")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, sagas.Cancel(ctx, "cart"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.EventType{domain.EventTaskStart, domain.EventTaskStop}, events)
}

func TestSagaRegistry_RootCancellation(t *testing.T) {
	root, cancel := context.WithCancel(context.Background())
	c := newCartContainer(t)
	sagas := runtime.NewSagaRegistry(root, c)

	task, err := sagas.Start(context.Background(), "cart", func(ctx context.Context, io *effect.IO) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	cancel()
	<-task.Done()
	assert.True(t, task.Canceled())
	assert.NoError(t, task.Err())
}
