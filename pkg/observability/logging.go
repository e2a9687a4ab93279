package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/canopy/pkg/domain"
)

// LogHooks records the lifecycle notifications as debug log entries.
// Failed events are logged at warn level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	element := func(msg string) func(context.Context, *domain.ElementHook) {
		return func(ctx context.Context, e *domain.ElementHook) {
			logger.DebugContext(ctx, msg, "session", e.Session.String(), "element", e.Path)
		}
	}
	return domain.LifecycleHooks{
		OnTreeOpen:    element("tree_open"),
		OnTreeClose:   element("tree_close"),
		OnBranchEnter: element("branch_enter"),
		OnTransition: func(ctx context.Context, e *domain.TransitionHook) {
			logger.DebugContext(ctx, "transition", "session", e.Session.String(), "kind", e.Kind, "from", e.From, "target", e.Target)
		},
		OnInterrupt: func(ctx context.Context, e *domain.TransitionHook) {
			logger.DebugContext(ctx, "interrupt", "session", e.Session.String(), "from", e.From, "target", e.Target)
		},
		OnEventDone: func(ctx context.Context, e *domain.EventDoneHook) {
			if e.Err != nil {
				logger.WarnContext(ctx, "event failed", "session", e.Session.String(), "event_id", e.EventID, "outcome", e.Outcome, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "event done", "session", e.Session.String(), "event_id", e.EventID, "outcome", e.Outcome, "duration", e.Duration)
		},
	}
}
