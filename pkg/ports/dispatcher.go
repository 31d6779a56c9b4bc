package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Dispatcher delivers actions to the state container.
type Dispatcher interface {
	Dispatch(ctx context.Context, action domain.Action) error
}

// StateReader exposes the current state tree.
type StateReader interface {
	GetState() domain.Tree
}
