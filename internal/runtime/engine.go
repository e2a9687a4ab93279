package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/controller"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/google/uuid"
)

// Outcome summarizes how an event was handled.
type Outcome string

const (
	// OutcomeOpened: a tree was opened from Root.
	OutcomeOpened Outcome = "opened"
	// OutcomeMatched: a branch of the open tree matched.
	OutcomeMatched Outcome = "matched"
	// OutcomeDefault: a default branch ran.
	OutcomeDefault Outcome = "default"
	// OutcomeIgnored: nothing matched; the fallback was informed and state is unchanged.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeInterrupted: another tree took over the session.
	OutcomeInterrupted Outcome = "interrupted"
	// OutcomeTransition: a terminal branch applied its transition.
	OutcomeTransition Outcome = "transition"
	// OutcomeClosed: the open tree closed naturally.
	OutcomeClosed Outcome = "closed"
	// OutcomeWaiting: an open sub-branch did not recognize the event.
	OutcomeWaiting Outcome = "waiting"
	// OutcomeError: the event failed; memory stays in its last consistent state.
	OutcomeError Outcome = "error"
)

// Engine executes a linked hierarchy against session memories.
// It is immutable after NewEngine and shared by every session.
type Engine struct {
	root        *domain.Element
	evaluator   ports.Evaluator
	performer   ports.Performer
	controllers *controller.Registry
	roles       ports.RoleResolver
	initializer ports.Initializer
	fallback    ports.Fallback
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	newID       func() string
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithEvaluator sets the expression evaluator used by Expr values.
func WithEvaluator(ev ports.Evaluator) EngineOption {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithPerformer sets the outbound call collaborator.
func WithPerformer(p ports.Performer) EngineOption {
	return func(e *Engine) {
		e.performer = p
	}
}

// WithControllers sets the controller registry.
func WithControllers(reg *controller.Registry) EngineOption {
	return func(e *Engine) {
		e.controllers = reg
	}
}

// WithRoleResolver sets the role resolver run when a session is created.
func WithRoleResolver(r ports.RoleResolver) EngineOption {
	return func(e *Engine) {
		e.roles = r
	}
}

// WithInitializer sets the session initializer.
func WithInitializer(i ports.Initializer) EngineOption {
	return func(e *Engine) {
		e.initializer = i
	}
}

// WithFallback sets the handler of unresolved events.
func WithFallback(f ports.Fallback) EngineOption {
	return func(e *Engine) {
		e.fallback = f
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine for root. The hierarchy must be linked;
// controllers referenced by trees must be registered.
func NewEngine(root *domain.Element, opts ...EngineOption) (*Engine, error) {
	if root == nil || root.Kind != domain.KindRoot {
		return nil, &domain.ConfigError{Reason: "engine requires a root element"}
	}
	e := &Engine{
		root:        root,
		controllers: controller.NewRegistry(),
		logger:      logging.NewNop(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.controllers.Validate(root); err != nil {
		return nil, err
	}
	return e, nil
}

// Root returns the hierarchy executed by the engine.
func (e *Engine) Root() *domain.Element {
	return e.root
}

// Initializer returns the configured initializer, if any.
func (e *Engine) Initializer() ports.Initializer {
	return e.initializer
}

// Inbox lets a wait listener pull events from the session mailbox.
type Inbox interface {
	// Next blocks until an event is available or ctx is done.
	Next(ctx context.Context) (domain.Event, bool)
}

// Turn carries the session-side collaborators of one dispatch.
type Turn struct {
	// Inbox feeds wait listeners. Optional.
	Inbox Inbox
	// Interrupt is closed when the session is killed; it cuts waits short.
	Interrupt <-chan struct{}
}

// Dispatch runs the control loop for one event and then the after-event
// maintenance. A returned error aborts this event only.
func (e *Engine) Dispatch(ctx context.Context, mem *memory.Memory, ev *domain.Event, turn Turn) (Outcome, error) {
	t := e.newTurn(mem, ev, turn)
	outcome, err := t.handle(ctx)
	t.maintain()
	if err != nil {
		return OutcomeError, err
	}
	return outcome, nil
}

// Init runs role resolution and the initializer for a freshly created memory.
func (e *Engine) Init(ctx context.Context, mem *memory.Memory) error {
	if e.roles != nil {
		role, err := e.roles.Resolve(ctx, mem)
		if err != nil {
			return fmt.Errorf("resolve role: %w", err)
		}
		mem.SetRole(role)
	}
	if e.initializer != nil {
		if err := e.initializer.Initialize(ctx, mem); err != nil {
			return fmt.Errorf("initialize session: %w", err)
		}
	}
	return nil
}

// Rebuild recreates the tree executors implied by the stack of a restored
// memory. Controllers get a fresh instance and their OnCreate runs again.
// When one of them fails, the executors already rebuilt are closed and the
// session is left at Root.
func (e *Engine) Rebuild(ctx context.Context, mem *memory.Memory) error {
	t := e.newTurn(mem, nil, Turn{})
	for _, pf := range mem.PendingFrames() {
		f := pf
		if err := t.attachController(ctx, &f); err != nil {
			err = fmt.Errorf("rebuild %s: %w", f.Tree.Path(), err)
			if rerr := t.reset(ctx); rerr != nil {
				t.logger.Warn("rebuild unwind failed", "err", rerr)
			}
			return err
		}
	}
	return nil
}

// Shutdown closes every open tree executor, innermost first, leaving only
// Root on the stack. Every OnClose runs even when one of them fails.
func (e *Engine) Shutdown(ctx context.Context, mem *memory.Memory) error {
	t := e.newTurn(mem, nil, Turn{})
	return t.reset(ctx)
}

// ClearCache drops owner.member for mem, preferring the value computed for
// the innermost open controller instance.
func (e *Engine) ClearCache(mem *memory.Memory, owner, member string) (any, bool) {
	instance := ""
	if f := mem.TopFrame(); f != nil {
		instance = f.InstanceID
	}
	return mem.ClearCache(owner, member, instance)
}

// errNoPerformer is returned by call actions when no performer is configured.
var errNoPerformer = errors.New("no performer configured")
