package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/canopy/internal/runtime"
	"github.com/aretw0/canopy/pkg/controller"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/dsl"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// recorder is a Performer that remembers every call and answers with
// sequential message references.
type recorder struct {
	mu    sync.Mutex
	calls []domain.Call
	next  int64
	fail  map[string]error
}

func (r *recorder) Perform(_ context.Context, call domain.Call) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if err, ok := r.fail[call.Action]; ok {
		return nil, err
	}
	r.next++
	return domain.MessageRef{ConversationID: call.Identity.ConversationID, MessageID: r.next}, nil
}

// sent returns the payloads of the send_message calls, in order.
func (r *recorder) sent() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, c := range r.calls {
		if c.Method == domain.MethodSend {
			out = append(out, c.Payload)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// closeLog records controller lifecycle calls by tree name.
type closeLog struct {
	mu     sync.Mutex
	events []string
}

func (l *closeLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

func (l *closeLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type trackedController struct {
	log *closeLog
}

func (c *trackedController) OnCreate(_ context.Context, env domain.Env) error {
	c.log.add("create:" + env.Element().Name)
	return nil
}

func (c *trackedController) OnClose(_ context.Context, env domain.Env) error {
	c.log.add("close:" + env.Element().Name)
	return nil
}

// brokenController refuses to be created while *fail is set.
type brokenController struct {
	log  *closeLog
	fail *bool
}

func (c *brokenController) OnCreate(_ context.Context, env domain.Env) error {
	if *c.fail {
		return errBoom
	}
	c.log.add("create:" + env.Element().Name)
	return nil
}

func (c *brokenController) OnClose(_ context.Context, env domain.Env) error {
	c.log.add("close:" + env.Element().Name)
	return nil
}

type harness struct {
	t          *testing.T
	engine     *runtime.Engine
	mem        *memory.Memory
	rec        *recorder
	log        *closeLog
	fallbacks  int
	failCreate bool
}

func newHarness(t *testing.T, rb *dsl.RootBuilder, opts ...runtime.EngineOption) *harness {
	t.Helper()
	root, err := rb.Build()
	require.NoError(t, err)

	h := &harness{t: t, rec: &recorder{fail: map[string]error{}}, log: &closeLog{}, failCreate: true}
	controllers := controller.NewRegistry()
	controllers.Register("tracked", func() any { return &trackedController{log: h.log} })
	controllers.Register("broken", func() any { return &brokenController{log: h.log, fail: &h.failCreate} })

	base := []runtime.EngineOption{
		runtime.WithPerformer(h.rec),
		runtime.WithControllers(controllers),
		runtime.WithFallback(ports.FallbackFunc(func(context.Context, domain.Env) error {
			h.fallbacks++
			return nil
		})),
	}
	h.engine, err = runtime.NewEngine(root, append(base, opts...)...)
	require.NoError(t, err)
	h.mem = memory.New(domain.NewIdentity(1, 1), root)
	return h
}

func (h *harness) dispatch(ev domain.Event) (runtime.Outcome, error) {
	return h.engine.Dispatch(context.Background(), h.mem, &ev, runtime.Turn{})
}

// send dispatches a text event and fails the test on error.
func (h *harness) send(text string) runtime.Outcome {
	h.t.Helper()
	out, err := h.dispatch(domain.NewTextEvent(h.mem.Identity(), text))
	require.NoError(h.t, err, "event %q", text)
	return out
}

func (h *harness) stack() []string {
	return h.mem.StackPaths()
}

func text(s string) *domain.Value { return domain.Const(s) }
