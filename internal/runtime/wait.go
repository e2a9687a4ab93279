package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
)

// wait sleeps for a.Wait.Duration. The sleep is cut short when the session
// is killed or when the listener accepts an event pulled from the mailbox;
// either way OnInterrupt runs, or the action fails with ErrWaitInterrupted.
// A kill also stops the actions that follow the wait once OnInterrupt is done.
func (t *turn) wait(ctx context.Context, el *domain.Element, a *domain.Action) error {
	w := a.Wait
	if w == nil {
		return fmt.Errorf("wait action without configuration")
	}

	wctx, cancel := context.WithTimeout(ctx, w.Duration)
	defer cancel()

	heard := make(chan struct{})
	if w.Listener != nil && t.io.Inbox != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				ev, ok := t.io.Inbox.Next(wctx)
				if !ok {
					return
				}
				if w.Listener(wctx, ev) {
					close(heard)
					return
				}
			}
		}()
		// The listener must be gone before the drain resumes.
		defer func() {
			cancel()
			<-done
		}()
	}

	start := time.Now()
	select {
	case <-wctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	case <-heard:
		t.logger.Debug("wait interrupted by listener", "element", el.Path(), "after", time.Since(start))
	case <-t.io.Interrupt:
		t.logger.Debug("wait interrupted by kill", "element", el.Path(), "after", time.Since(start))
	}

	if len(w.OnInterrupt) == 0 {
		return domain.ErrWaitInterrupted
	}
	if err := t.runActions(context.WithoutCancel(ctx), el, w.OnInterrupt); err != nil {
		return err
	}
	if t.killed() {
		return domain.ErrSessionKilled
	}
	return nil
}

func (t *turn) killed() bool {
	select {
	case <-t.io.Interrupt:
		return true
	default:
		return false
	}
}
