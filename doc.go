/*
Package arbor is a state container for applications whose features are loaded
lazily.

One App owns a single immutable state tree. Feature modules join it at runtime:
each brings a reducer for its own slice of the tree and, optionally, a saga, a
long-running effect handler that reacts to actions. Registration is idempotent,
and ejecting a module cancels its saga and waits for it before the slice is
removed, so no handler ever writes into state it no longer owns.

# Usage

	app := arbor.New(arbor.WithLogger(logger))
	defer app.Close(ctx)

	cart := arbor.Module{
		Key: "cart",
		Reducer: domain.ReducerFor(Cart{}, func(c Cart, a domain.Action) (Cart, error) {
			if a.Type == "cart/ADD" {
				return c.With(a.Payload.(string)), nil
			}
			return c, nil
		}),
	}

	// Call from the feature's activation path; repeated calls are no-ops.
	if err := app.Lifecycle(cart).Activate(ctx); err != nil {
		return err
	}
	_ = app.Dispatch(ctx, domain.NewAction("cart/ADD", "milk"))

	items := arbor.Slice(app.State(), "cart", Cart{}).Items

# Persistence

Attach a persistence.Persistor with WithPersistor and call Rehydrate once at
startup. Whitelisted slices are saved after they change and restored when
their module registers, even if that happens after Rehydrate.
*/
package arbor
