package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/canopy/internal/runtime"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counting returns a value that counts its evaluations.
func counting(n *int) *domain.Value {
	return domain.Func(func(context.Context, domain.Env) (any, error) {
		*n++
		return *n, nil
	})
}

func TestCache_Strategies(t *testing.T) {
	tests := []struct {
		strategy    domain.CacheStrategy
		afterAgain  int // evaluations after a second event inside the tree
		afterReopen int
	}{
		{domain.CacheEvent, 2, 3},
		{domain.CacheElement, 1, 2},
		{domain.CacheTree, 1, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			n := 0
			v := counting(&n).Cached("Catalog", "items", tt.strategy)
			h := newHarness(t, dsl.Root(
				dsl.Tree("shop").Commands("/shop").Set("first", v).Set("second", v).Branches(
					dsl.Branch("again").Keys("again").Set("third", v).Branches(
						dsl.Branch("leave").Keys("leave").Jump("other"),
					),
				),
				dsl.Tree("other").Scope(domain.ScopeCommands).Branches(dsl.Branch("x").Keys("x")),
			))

			h.send("/shop")
			assert.Equal(t, 1, n, "memoized within one event")

			h.send("again")
			assert.Equal(t, tt.afterAgain, n)

			h.send("leave")
			assert.Zero(t, h.mem.CacheLen(), "dropped once out of scope")
			h.send("/shop")
			assert.Equal(t, tt.afterReopen, n)
		})
	}
}

func TestCache_ClearCacheAction(t *testing.T) {
	n := 0
	v := counting(&n).Cached("Catalog", "items", domain.CacheSession)
	h := newHarness(t, dsl.Root(
		dsl.Tree("shop").Commands("/shop").Set("items", v).Branches(
			dsl.Branch("show").Keys("show").Set("items", v).Back("shop"),
			dsl.Branch("refresh").Keys("refresh").
				Do(domain.Action{Kind: domain.ActionClearCache, Cache: &domain.CacheRef{Owner: "Catalog", Member: "items"}, SaveTo: "old"}).
				Set("items", v).
				Back("shop"),
		),
	))

	h.send("/shop")
	h.send("show")
	assert.Equal(t, 1, n)

	h.send("refresh")
	assert.Equal(t, 2, n)
	old, _ := h.mem.Get("old")
	assert.Equal(t, 1, old)

	prev, ok := h.engine.ClearCache(h.mem, "Catalog", "items")
	require.True(t, ok)
	assert.Equal(t, 2, prev)
	assert.Zero(t, h.mem.CacheLen())
}

func TestKeyboards_PrunedWhenOwnerLeavesScope(t *testing.T) {
	h := newHarness(t, dsl.Root(
		dsl.Tree("A").Commands("/a").Branches(
			dsl.Branch("menu").Keys("menu").
				Do(dsl.Keyboard("kb", text("page-1"))).
				Branches(
					dsl.Branch("next").Keys("next").
						Do(dsl.SwitchKeyboard("kb", text("page-2"))).
						Branches(dsl.Branch("up").Keys("up").Back("A")),
				),
		),
	))

	h.send("/a")
	h.send("menu")
	ks, ok := h.mem.Keyboard("A", "kb")
	require.True(t, ok)
	assert.Equal(t, "page-1", ks.State)

	h.send("next")
	ks, ok = h.mem.Keyboard("A", "kb")
	require.True(t, ok, "keyboards of ancestors survive")
	assert.Equal(t, "page-2", ks.State)
	assert.Equal(t, "menu", ks.Owner.Name)

	h.send("up")
	_, ok = h.mem.Keyboard("A", "kb")
	assert.False(t, ok, "dropped once the owner is deeper than the active element")
}

func TestKeyboards_SwitchMissing(t *testing.T) {
	h := newHarness(t, dsl.Root(
		dsl.Tree("A").Commands("/a").Branches(
			dsl.Branch("bad").Keys("bad").Do(dsl.SwitchKeyboard("missing", text("?"))),
		),
	))

	h.send("/a")
	_, err := h.dispatch(domain.NewTextEvent(h.mem.Identity(), "bad"))
	assert.ErrorIs(t, err, domain.ErrKeyboardNotFound)
	var aerr *domain.ActionError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, "A/bad", aerr.Element)
}

func TestActions_Errors(t *testing.T) {
	build := func(boom domain.Action) *dsl.RootBuilder {
		return dsl.Root(
			dsl.Tree("A").Commands("/a").
				Do(boom).
				Send("after", text("after")).
				Branches(dsl.Branch("x").Keys("x")),
		)
	}

	t.Run("fatal", func(t *testing.T) {
		h := newHarness(t, build(dsl.Send("boom", text("boom"))))
		h.rec.fail["A#boom"] = errBoom

		out, err := h.dispatch(domain.NewTextEvent(h.mem.Identity(), "/a"))
		assert.Equal(t, runtime.OutcomeError, out)
		assert.ErrorIs(t, err, errBoom)
		var aerr *domain.ActionError
		require.True(t, errors.As(err, &aerr))
		assert.Equal(t, "boom", aerr.Action)
		assert.Equal(t, []any{"boom"}, h.rec.sent(), "the sequence stops at the failing action")
		// The tree stays open in its last consistent state.
		assert.Equal(t, []string{"", "A"}, h.stack())
	})

	t.Run("ignore error", func(t *testing.T) {
		a := dsl.Send("boom", text("boom"))
		a.IgnoreError = true
		h := newHarness(t, build(a))
		h.rec.fail["A#boom"] = errBoom

		h.send("/a")
		assert.Equal(t, []any{"boom", "after"}, h.rec.sent())
	})

	t.Run("on error", func(t *testing.T) {
		a := dsl.Send("boom", text("boom"))
		a.OnError = []domain.Action{dsl.Send("sorry", text("sorry"))}
		h := newHarness(t, build(a))
		h.rec.fail["A#boom"] = errBoom

		h.send("/a")
		assert.Equal(t, []any{"boom", "sorry", "after"}, h.rec.sent())
	})
}

func TestActions_CallRecordsResult(t *testing.T) {
	var consumed any
	a := dsl.Send("hello", text("hi"))
	a.Registry = "greetings"
	a.SaveTo = "last_result"
	a.Consumer = func(_ context.Context, env domain.Env, result any) error {
		consumed = result
		env.Set("consumed", true)
		return nil
	}
	h := newHarness(t, dsl.Root(
		dsl.Tree("A").Commands("/a").Do(a).Branches(dsl.Branch("x").Keys("x")),
	))

	h.send("/a")
	ref, ok := h.mem.LastSent()
	require.True(t, ok)
	assert.Equal(t, ref, consumed)
	assert.Equal(t, []domain.MessageRef{ref}, h.mem.Registry("greetings"))
	saved, _ := h.mem.Get("last_result")
	assert.Equal(t, ref, saved)
	flag, _ := h.mem.Get("consumed")
	assert.Equal(t, true, flag)
	assert.Equal(t, "A#hello", h.rec.calls[0].Action)
}

func TestActions_ControllerVisibleToValues(t *testing.T) {
	h := newHarness(t, dsl.Root(
		dsl.Tree("A").Commands("/a").Controller("tracked").
			Set("has_controller", domain.Func(func(_ context.Context, env domain.Env) (any, error) {
				_, ok := env.Controller().(*trackedController)
				return ok, nil
			})).
			Branches(dsl.Branch("x").Keys("x")),
	))

	h.send("/a")
	v, _ := h.mem.Get("has_controller")
	assert.Equal(t, true, v)
}

// chanInbox feeds wait listeners from a channel.
type chanInbox chan domain.Event

func (c chanInbox) Next(ctx context.Context) (domain.Event, bool) {
	select {
	case ev := <-c:
		return ev, true
	case <-ctx.Done():
		return domain.Event{}, false
	}
}

func waitRoot(d time.Duration, onInterrupt ...domain.Action) *dsl.RootBuilder {
	listener := func(_ context.Context, ev domain.Event) bool { return ev.Text == "stop" }
	return dsl.Root(
		dsl.Tree("A").Commands("/a").
			Do(dsl.Pause(d, listener, onInterrupt...)).
			Send("after", text("after")).
			Branches(dsl.Branch("x").Keys("x")),
	)
}

func TestWait_Timeout(t *testing.T) {
	h := newHarness(t, waitRoot(10*time.Millisecond))
	inbox := make(chanInbox, 1)
	inbox <- domain.NewTextEvent(h.mem.Identity(), "ignored")

	ev := domain.NewTextEvent(h.mem.Identity(), "/a")
	_, err := h.engine.Dispatch(context.Background(), h.mem, &ev, runtime.Turn{Inbox: inbox})
	require.NoError(t, err)
	assert.Equal(t, []any{"after"}, h.rec.sent())
	assert.Empty(t, inbox, "events heard by the listener are consumed")
}

func TestWait_ListenerInterrupts(t *testing.T) {
	h := newHarness(t, waitRoot(5*time.Second, dsl.Send("late", text("interrupted"))))
	inbox := make(chanInbox, 1)
	inbox <- domain.NewTextEvent(h.mem.Identity(), "stop")

	start := time.Now()
	ev := domain.NewTextEvent(h.mem.Identity(), "/a")
	_, err := h.engine.Dispatch(context.Background(), h.mem, &ev, runtime.Turn{Inbox: inbox})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []any{"interrupted", "after"}, h.rec.sent())
}

func TestWait_KillWithoutHandler(t *testing.T) {
	h := newHarness(t, waitRoot(5*time.Second))
	kill := make(chan struct{})
	close(kill)

	ev := domain.NewTextEvent(h.mem.Identity(), "/a")
	_, err := h.engine.Dispatch(context.Background(), h.mem, &ev, runtime.Turn{Interrupt: kill})
	assert.ErrorIs(t, err, domain.ErrWaitInterrupted)
	assert.Empty(t, h.rec.sent())
}

func TestWait_KillStopsFollowingActions(t *testing.T) {
	h := newHarness(t, waitRoot(5*time.Second, dsl.Send("bye", text("bye"))))
	kill := make(chan struct{})
	close(kill)

	ev := domain.NewTextEvent(h.mem.Identity(), "/a")
	_, err := h.engine.Dispatch(context.Background(), h.mem, &ev, runtime.Turn{Interrupt: kill})
	assert.ErrorIs(t, err, domain.ErrSessionKilled)
	assert.Equal(t, []any{"bye"}, h.rec.sent(), "only the interrupt handler runs")
}
