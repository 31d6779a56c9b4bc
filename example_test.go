package arbor_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/persistence"
)

// ExampleApp_Lifecycle shows a counter module whose slice survives a restart.
func ExampleApp_Lifecycle() {
	ctx := context.Background()
	storage := memory.NewStore()

	counter := arbor.Module{
		Key: "counter",
		Reducer: domain.ReducerFor(0, func(n int, a domain.Action) (int, error) {
			if a.Type == "counter/INC" {
				return n + 1, nil
			}
			return n, nil
		}),
	}

	run := func(incs int) int {
		app := arbor.New(arbor.WithPersistor(persistence.New(storage, persistence.WithWhitelist("counter"))))
		defer app.Close(ctx)

		if err := app.Rehydrate(ctx); err != nil {
			log.Fatal(err)
		}
		if err := app.Lifecycle(counter).Activate(ctx); err != nil {
			log.Fatal(err)
		}
		for i := 0; i < incs; i++ {
			if err := app.Dispatch(ctx, domain.NewAction("counter/INC", nil)); err != nil {
				log.Fatal(err)
			}
		}
		return arbor.Slice(app.State(), "counter", 0)
	}

	fmt.Println(run(3))
	fmt.Println(run(2))

	// Output:
	// 3
	// 5
}
