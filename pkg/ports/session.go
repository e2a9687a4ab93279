package ports

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

// RoleResolver assigns a role to a session. It is invoked once, when the
// session is created, on the session's own worker.
type RoleResolver interface {
	Resolve(ctx context.Context, mem *memory.Memory) (string, error)
}

// RoleResolverFunc adapts a function into a RoleResolver.
type RoleResolverFunc func(ctx context.Context, mem *memory.Memory) (string, error)

func (f RoleResolverFunc) Resolve(ctx context.Context, mem *memory.Memory) (string, error) {
	return f(ctx, mem)
}

// Initializer bootstraps sessions.
type Initializer interface {
	// Initialize runs once per created session, after role resolution.
	Initialize(ctx context.Context, mem *memory.Memory) error

	// InitialSessions lists the identities to create at process start.
	InitialSessions(ctx context.Context) ([]domain.Identity, error)
}

// Fallback receives the events for which no element could be resolved:
// ignored updates at Root or inside a tree, and unrecognized updates of a
// waiting tree executor.
type Fallback interface {
	HandleUnresolved(ctx context.Context, env domain.Env) error
}

// FallbackFunc adapts a function into a Fallback.
type FallbackFunc func(ctx context.Context, env domain.Env) error

func (f FallbackFunc) HandleUnresolved(ctx context.Context, env domain.Env) error {
	return f(ctx, env)
}
