package ports

import (
	"context"
	"errors"

	"github.com/aretw0/canopy/pkg/domain"
)

// Performer delivers outbound calls to the messaging platform.
//
// The result is handed to the action's consumer. A domain.MessageRef (or a
// pointer to one) is recognized as the reference of a delivered message and
// recorded in the session memory.
type Performer interface {
	Perform(ctx context.Context, call domain.Call) (any, error)
}

// PerformerFunc adapts a function into a Performer.
type PerformerFunc func(ctx context.Context, call domain.Call) (any, error)

func (f PerformerFunc) Perform(ctx context.Context, call domain.Call) (any, error) {
	return f(ctx, call)
}

// Tee hands every call to each performer in order and returns the result of
// the first one. Errors of the others are joined to its error.
func Tee(primary Performer, others ...Performer) Performer {
	if len(others) == 0 {
		return primary
	}
	return PerformerFunc(func(ctx context.Context, call domain.Call) (any, error) {
		res, err := primary.Perform(ctx, call)
		errs := []error{err}
		for _, p := range others {
			if _, perr := p.Perform(ctx, call); perr != nil {
				errs = append(errs, perr)
			}
		}
		return res, errors.Join(errs...)
	})
}
