package domain

import (
	"context"
	"time"
)

// HookType defines the category of a lifecycle notification.
type HookType string

const (
	HookTreeOpen    HookType = "tree_open"
	HookTreeClose   HookType = "tree_close"
	HookBranchEnter HookType = "branch_enter"
	HookTransition  HookType = "transition"
	HookInterrupt   HookType = "interrupt"
	HookEventDone   HookType = "event_done"
)

// HookBase contains common fields for all lifecycle notifications.
type HookBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      HookType  `json:"type"`
	Session   Identity  `json:"session"`
}

// ElementHook reports a tree being opened or closed, or a branch being entered.
type ElementHook struct {
	HookBase
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// TransitionHook reports an applied transition or an interruption.
type TransitionHook struct {
	HookBase
	Kind   string `json:"kind"`
	From   string `json:"from"`
	Target string `json:"target"`
}

// EventDoneHook reports the outcome of one drained event.
type EventDoneHook struct {
	HookBase
	EventID  string        `json:"event_id"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Every field is optional. Hooks run on the session worker and must not block.
type LifecycleHooks struct {
	OnTreeOpen    func(context.Context, *ElementHook)
	OnTreeClose   func(context.Context, *ElementHook)
	OnBranchEnter func(context.Context, *ElementHook)
	OnTransition  func(context.Context, *TransitionHook)
	OnInterrupt   func(context.Context, *TransitionHook)
	OnEventDone   func(context.Context, *EventDoneHook)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTreeOpen:    chain(h.OnTreeOpen, other.OnTreeOpen),
		OnTreeClose:   chain(h.OnTreeClose, other.OnTreeClose),
		OnBranchEnter: chain(h.OnBranchEnter, other.OnBranchEnter),
		OnTransition:  chain(h.OnTransition, other.OnTransition),
		OnInterrupt:   chain(h.OnInterrupt, other.OnInterrupt),
		OnEventDone:   chain(h.OnEventDone, other.OnEventDone),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
