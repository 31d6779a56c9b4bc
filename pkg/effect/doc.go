/*
Package effect runs cooperative effect handlers ("sagas").

A Saga is a function receiving a context and an IO. It reacts to dispatched
actions with IO.Take, performs asynchronous work, and reports results with
IO.Put. Cancellation is cooperative: the task's context is cancelled and the
handler observes it at its next suspension point.

	saga := effect.TakeLatest("cart/FETCH", func(ctx context.Context, io *effect.IO, a domain.Action) error {
		var item Item
		if err := client.Get(ctx, url, &item); err != nil {
			return io.Put(ctx, domain.NewAction("cart/FETCH_ERROR", err.Error()))
		}
		return io.Put(ctx, domain.NewAction("cart/FETCH_SUCCESS", item))
	})

	task := effect.Spawn(ctx, "cart", saga, store)
	task.Cancel()
	err := task.Wait(ctx) // nil: cancellation is not a failure
*/
package effect
