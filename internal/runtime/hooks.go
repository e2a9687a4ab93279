package runtime

import (
	"context"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
)

func (t *turn) base(typ domain.HookType) domain.HookBase {
	return domain.HookBase{Timestamp: time.Now(), Type: typ, Session: t.mem.Identity()}
}

func (t *turn) emitElement(ctx context.Context, typ domain.HookType, el *domain.Element) {
	var fn func(context.Context, *domain.ElementHook)
	switch typ {
	case domain.HookTreeOpen:
		fn = t.e.hooks.OnTreeOpen
	case domain.HookTreeClose:
		fn = t.e.hooks.OnTreeClose
	case domain.HookBranchEnter:
		fn = t.e.hooks.OnBranchEnter
	}
	if fn == nil {
		return
	}
	fn(ctx, &domain.ElementHook{HookBase: t.base(typ), Path: el.Path(), Kind: el.Kind})
}

func (t *turn) emitTransition(ctx context.Context, typ domain.HookType, kind string, from *domain.Element, target string) {
	fn := t.e.hooks.OnTransition
	if typ == domain.HookInterrupt {
		fn = t.e.hooks.OnInterrupt
	}
	if fn == nil {
		return
	}
	fn(ctx, &domain.TransitionHook{HookBase: t.base(typ), Kind: kind, From: from.Path(), Target: target})
}

// EmitEventDone reports the outcome of a drained event.
func (e *Engine) EmitEventDone(ctx context.Context, id domain.Identity, ev *domain.Event, outcome Outcome, d time.Duration, err error) {
	if e.hooks.OnEventDone == nil {
		return
	}
	e.hooks.OnEventDone(ctx, &domain.EventDoneHook{
		HookBase: domain.HookBase{Timestamp: time.Now(), Type: domain.HookEventDone, Session: id},
		EventID:  ev.ID,
		Outcome:  string(outcome),
		Duration: d,
		Err:      err,
	})
}
