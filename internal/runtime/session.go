package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

// Submitter schedules drain tasks. *pool.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

// SessionConfig holds the collaborators shared by every session.
type SessionConfig struct {
	Engine *Engine
	Pool   Submitter
	Logger *slog.Logger

	// AfterEvent runs on the worker after each event and its maintenance.
	AfterEvent func(ctx context.Context, s *Session, mem *memory.Memory, ev *domain.Event, outcome Outcome, err error)
	// OnDestroy runs on the worker once the session has been killed and
	// its executors closed.
	OnDestroy func(ctx context.Context, s *Session, mem *memory.Memory)
}

// Session is one participant's actor: a memory, a mailbox and the control
// loop that drains it.
//
// Producers only append to the mailbox and, if no worker holds the drain,
// submit one; a single compare-and-swap on running grants the drain, so at
// most one worker ever touches the memory.
type Session struct {
	id  domain.Identity
	cfg SessionConfig
	mem *memory.Memory
	box *mailbox

	ctx     context.Context
	running atomic.Bool
	killed  atomic.Bool
	kill    chan struct{}
	once    sync.Once
	done    chan struct{}

	language atomic.Value
	logger   *slog.Logger
}

// NewSession wraps mem into a session. The first mailbox task initializes
// the memory: role resolution and the initializer for a new memory, frame
// reconstruction for a restored one.
func NewSession(ctx context.Context, mem *memory.Memory, restored bool, cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = cfg.Engine.logger
	}
	s := &Session{
		id:     mem.Identity(),
		cfg:    cfg,
		mem:    mem,
		box:    newMailbox(),
		ctx:    context.WithoutCancel(ctx),
		kill:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.With("session", mem.Identity().String()),
	}
	s.language.Store(mem.Language())

	s.box.push(item{task: func(ctx context.Context, mem *memory.Memory) {
		var err error
		if restored {
			err = cfg.Engine.Rebuild(ctx, mem)
		} else {
			err = cfg.Engine.Init(ctx, mem)
		}
		if err != nil {
			s.logger.Error("session initialization failed", "err", err)
		}
	}})
	s.schedule()
	return s
}

func (s *Session) ID() domain.Identity { return s.id }

// Language is the language of the memory as of the last processed event.
func (s *Session) Language() string {
	l, _ := s.language.Load().(string)
	return l
}

// Killed reports whether Kill was called.
func (s *Session) Killed() bool { return s.killed.Load() }

// Done is closed once the session has been destroyed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Pending is the number of queued mailbox entries.
func (s *Session) Pending() int { return s.box.len() }

// Enqueue appends ev to the mailbox and schedules a drain.
func (s *Session) Enqueue(ev domain.Event) error {
	if s.killed.Load() {
		return domain.ErrSessionKilled
	}
	s.box.push(item{ev: &ev})
	s.schedule()
	return nil
}

// Do queues fn to run on the session worker, serialized with events.
// abort is called instead when the session dies before fn runs.
func (s *Session) Do(fn func(ctx context.Context, mem *memory.Memory), abort func()) error {
	if s.killed.Load() {
		return domain.ErrSessionKilled
	}
	s.box.push(item{task: fn, abort: abort})
	s.schedule()
	return nil
}

// Inspect runs fn on the session worker and waits for it to return.
func (s *Session) Inspect(ctx context.Context, fn func(mem *memory.Memory)) error {
	done := make(chan error, 1)
	err := s.Do(func(_ context.Context, mem *memory.Memory) {
		fn(mem)
		done <- nil
	}, func() {
		done <- domain.ErrSessionKilled
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill marks the session dead and interrupts any wait in progress. The
// worker finishes the event in hand, discards the rest of the mailbox,
// closes every executor and runs the destruction callback. Kill never
// blocks and may be called from inside a handler.
func (s *Session) Kill() {
	if !s.killed.CompareAndSwap(false, true) {
		return
	}
	close(s.kill)
	s.schedule()
}

func (s *Session) schedule() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	if err := s.cfg.Pool.Submit(s.drain); err != nil {
		s.running.Store(false)
		s.logger.Error("failed to schedule session drain", "err", err)
	}
}

func (s *Session) drain() {
	defer func() {
		// Release the drain so the next event can be scheduled; the panic
		// still propagates to the pool.
		if r := recover(); r != nil {
			s.running.Store(false)
			panic(r)
		}
	}()
	for {
		for {
			if s.killed.Load() {
				// running stays set: no drain is ever scheduled again.
				s.finish()
				return
			}
			it, ok := s.box.pop()
			if !ok {
				break
			}
			s.process(it)
		}

		s.running.Store(false)
		// A producer may have pushed between the last pop and the store.
		if s.box.len() == 0 && !s.killed.Load() {
			return
		}
		if !s.running.CompareAndSwap(false, true) {
			return
		}
	}
}

func (s *Session) process(it item) {
	if it.task != nil {
		it.task(s.ctx, s.mem)
		return
	}

	start := time.Now()
	outcome, err := s.cfg.Engine.Dispatch(s.ctx, s.mem, it.ev, Turn{Inbox: s.box, Interrupt: s.kill})
	elapsed := time.Since(start)
	s.language.Store(s.mem.Language())

	if err != nil {
		s.logger.Error("event failed", "event_id", it.ev.ID, "outcome", outcome, "err", err)
	} else {
		s.logger.Debug("event processed", "event_id", it.ev.ID, "outcome", outcome, "duration", elapsed)
	}
	s.cfg.Engine.EmitEventDone(s.ctx, s.id, it.ev, outcome, elapsed, err)
	if s.cfg.AfterEvent != nil {
		s.cfg.AfterEvent(s.ctx, s, s.mem, it.ev, outcome, err)
	}
}

func (s *Session) finish() {
	s.once.Do(func() {
		defer close(s.done)

		dropped := 0
		for _, it := range s.box.drainAll() {
			if it.abort != nil {
				it.abort()
			}
			dropped++
		}
		if dropped > 0 {
			s.logger.Debug("discarded mailbox entries", "count", dropped)
		}

		if err := s.cfg.Engine.Shutdown(s.ctx, s.mem); err != nil {
			s.logger.Warn("closing executors failed", "err", err)
		}
		if s.cfg.OnDestroy != nil {
			s.cfg.OnDestroy(s.ctx, s, s.mem)
		}
		s.logger.Debug("session destroyed")
	})
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s)", s.id)
}
