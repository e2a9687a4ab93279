package ports

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// Evaluator evaluates expressions of the embedded expression language.
//
// Implementations must be safe for concurrent use by many sessions and must
// not mutate engine state except through the writes exposed by env.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, env domain.Env) (any, error)
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(ctx context.Context, expr string, env domain.Env) (any, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, expr string, env domain.Env) (any, error) {
	return f(ctx, expr, env)
}
