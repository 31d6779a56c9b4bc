package effect

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// Worker handles one action taken by TakeEvery or TakeLatest.
// Workers must not call io.Take: the watcher loop owns the action stream.
type Worker func(ctx context.Context, io *IO, action domain.Action) error

// TakeEvery runs worker concurrently for every action matching pattern.
// The first worker error stops the watcher and the remaining workers.
func TakeEvery(pattern string, worker Worker) Saga {
	return func(ctx context.Context, io *IO) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for {
				action, err := io.Take(gctx, pattern)
				if err != nil {
					return err
				}
				g.Go(func() error {
					return worker(gctx, io, action)
				})
			}
		})
		return g.Wait()
	}
}

// TakeLatest runs worker for each action matching pattern, cancelling and
// awaiting the previous worker first, so at most one worker is in flight.
// A worker that stops because it was superseded does not fail the saga.
func TakeLatest(pattern string, worker Worker) Saga {
	return func(ctx context.Context, io *IO) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var (
				cancelPrev context.CancelFunc
				prevDone   chan struct{}
			)
			defer func() {
				if cancelPrev != nil {
					cancelPrev()
				}
			}()

			for {
				action, err := io.Take(gctx, pattern)
				if err != nil {
					return err
				}
				if cancelPrev != nil {
					cancelPrev()
					<-prevDone
				}

				wctx, cancel := context.WithCancel(gctx)
				done := make(chan struct{})
				cancelPrev, prevDone = cancel, done

				g.Go(func() error {
					defer close(done)
					err := worker(wctx, io, action)
					if err != nil && wctx.Err() != nil && gctx.Err() == nil {
						// superseded by a newer action
						return nil
					}
					return err
				})
			}
		})
		return g.Wait()
	}
}
