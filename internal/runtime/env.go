package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

// turn is the execution context of one dispatch. It implements domain.Env
// for values, predicates, consumers and controller callbacks.
type turn struct {
	e       *Engine
	mem     *memory.Memory
	ev      *domain.Event
	io      Turn
	element *domain.Element
	logger  *slog.Logger
}

var _ domain.Env = (*turn)(nil)

func (e *Engine) newTurn(mem *memory.Memory, ev *domain.Event, io Turn) *turn {
	logger := e.logger.With("session", mem.Identity().String())
	if ev != nil && ev.ID != "" {
		logger = logger.With("event_id", ev.ID)
	}
	if ev == nil {
		ev = &domain.Event{Identity: mem.Identity()}
	}
	return &turn{e: e, mem: mem, ev: ev, io: io, logger: logger}
}

func (t *turn) Identity() domain.Identity { return t.mem.Identity() }
func (t *turn) Event() *domain.Event      { return t.ev }

func (t *turn) Element() *domain.Element {
	if t.element != nil {
		return t.element
	}
	return t.mem.Top()
}

func (t *turn) Controller() any {
	if f := t.mem.TopFrame(); f != nil {
		return f.Controller
	}
	return nil
}

func (t *turn) Get(key string) (any, bool) { return t.mem.Get(key) }
func (t *turn) Set(key string, value any)  { t.mem.Set(key, value) }
func (t *turn) Delete(key string)          { t.mem.Delete(key) }
func (t *turn) Role() string               { return t.mem.Role() }
func (t *turn) Language() string           { return t.mem.Language() }
func (t *turn) SetLanguage(lang string)    { t.mem.SetLanguage(lang) }

func (t *turn) Keyboard(name string) (any, bool) {
	ks, ok := t.mem.Keyboard(t.treeName(), name)
	if !ok {
		return nil, false
	}
	return ks.State, true
}

func (t *turn) ClearCache(owner, member string) (any, bool) {
	return t.mem.ClearCache(owner, member, t.instanceID())
}

// with runs fn with el as the current element.
func (t *turn) with(el *domain.Element, fn func() error) error {
	prev := t.element
	t.element = el
	defer func() { t.element = prev }()
	return fn()
}

// treeName is the name of the innermost open tree, or the root name.
func (t *turn) treeName() string {
	if f := t.mem.TopFrame(); f != nil {
		return f.Tree.Name
	}
	return t.mem.Root().Name
}

func (t *turn) instanceID() string {
	if f := t.mem.TopFrame(); f != nil {
		return f.InstanceID
	}
	return ""
}

// resolve produces the value of v, honouring its cache policy.
func (t *turn) resolve(ctx context.Context, v *domain.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	if v.Cache == nil {
		return t.compute(ctx, v)
	}

	key := memory.CacheKey{Owner: v.Cache.Owner, Member: v.Cache.Member, Instance: t.instanceID()}
	if entry, ok := t.mem.CacheGet(key); ok {
		return entry.Value, nil
	}
	val, err := t.compute(ctx, v)
	if err != nil {
		return nil, err
	}
	t.mem.CachePut(key, &memory.CacheEntry{
		Value:      val,
		Strategy:   v.Cache.Strategy,
		Applicable: t.applicability(v.Cache.Strategy),
	})
	return val, nil
}

func (t *turn) compute(ctx context.Context, v *domain.Value) (any, error) {
	switch {
	case v.Func != nil:
		return v.Func(ctx, t)
	case v.Expr != "":
		if t.e.evaluator == nil {
			return nil, fmt.Errorf("evaluate %q: no evaluator configured", v.Expr)
		}
		return t.e.evaluator.Evaluate(ctx, v.Expr, t)
	}
	return v.Const, nil
}

// applicability captures the session position for a cache strategy.
func (t *turn) applicability(s domain.CacheStrategy) func(*memory.Memory) bool {
	switch s {
	case domain.CacheTree:
		f := t.mem.TopFrame()
		if f == nil {
			return nil
		}
		id := f.InstanceID
		return func(m *memory.Memory) bool { return m.HasInstance(id) }
	case domain.CacheElement:
		el := t.mem.Top()
		return func(m *memory.Memory) bool { return m.OnStack(el) }
	case domain.CacheEvent:
		seq := t.mem.EventSeq()
		return func(m *memory.Memory) bool { return m.EventSeq() == seq }
	}
	return nil
}

// evaluate resolves v and asserts its type.
func evaluate[T any](ctx context.Context, t *turn, v *domain.Value) (T, error) {
	var zero T
	raw, err := t.resolve(ctx, v)
	if err != nil {
		return zero, err
	}
	out, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("value %s: expected %T, got %T", v, zero, raw)
	}
	return out, nil
}

// predicate evaluates p with el as the current element.
func (t *turn) predicate(ctx context.Context, el *domain.Element, p *domain.Value) (bool, error) {
	var ok bool
	err := t.with(el, func() error {
		var err error
		ok, err = evaluate[bool](ctx, t, p)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("predicate of %s: %w", el.Path(), err)
	}
	return ok, nil
}

// maintain runs the after-event bookkeeping: the event sequence advances,
// inapplicable cache entries are dropped and keyboards owned by elements
// out of reach are pruned.
func (t *turn) maintain() {
	t.mem.AdvanceEvent()
	if n := t.mem.PruneCache(); n > 0 {
		t.logger.Debug("cache entries dropped", "count", n)
	}
	if n := t.mem.PruneKeyboards(t.mem.Top()); n > 0 {
		t.logger.Debug("keyboards pruned", "count", n)
	}
}
