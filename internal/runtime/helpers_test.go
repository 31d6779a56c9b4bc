package runtime_test

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

type cartState struct {
	Items   []string `json:"items"`
	Loading bool     `json:"loading"`
}

var errBadItem = errors.New("bad item")

func cartReducer() domain.Reducer {
	return domain.ReducerFor(cartState{}, func(s cartState, a domain.Action) (cartState, error) {
		switch a.Type {
		case "cart/ADD":
			item, _ := a.Payload.(string)
			if item == "" {
				return s, errBadItem
			}
			items := append(append([]string(nil), s.Items...), item)
			return cartState{Items: items, Loading: s.Loading}, nil
		case "cart/FETCH":
			return cartState{Items: s.Items, Loading: true}, nil
		}
		return s, nil
	})
}

func counterReducer() domain.Reducer {
	return domain.ReducerFor(0, func(n int, a domain.Action) (int, error) {
		if a.Type == "counter/INC" {
			return n + 1, nil
		}
		return n, nil
	})
}

func sameMap(a, b domain.Tree) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}
