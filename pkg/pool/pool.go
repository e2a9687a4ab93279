// Package pool provides the bounded worker pool shared by every session.
//
// The pool keeps Core permanent workers, grows up to Max when every worker
// is busy, and retires surplus workers after KeepAlive of idleness. The
// task queue is an unbounded FIFO: Submit never blocks.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/canopy/internal/logging"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool closed")

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int
	Idle      int
	Queued    int
	Completed int64
	Panics    int64
}

// Pool is a bounded worker pool with an unbounded queue.
type Pool struct {
	core      int
	max       int
	keepAlive time.Duration
	onPanic   func(any)
	logger    *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	workers int
	idle    int
	closed  bool
	wg      sync.WaitGroup

	completed atomic.Int64
	panics    atomic.Int64
}

// Option configures the Pool.
type Option func(*Pool)

// WithSize sets the number of permanent workers and the upper bound.
// max is raised to core when smaller.
func WithSize(core, max int) Option {
	return func(p *Pool) {
		p.core = core
		p.max = max
	}
}

// WithKeepAlive sets how long a surplus worker waits for work before exiting.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Pool) {
		p.keepAlive = d
	}
}

// WithPanicHandler installs a handler for task panics. Without one, a task
// panic is counted, logged and then re-raised on the worker goroutine.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(p *Pool) {
		p.onPanic = fn
	}
}

// WithLogger configures a logger for the Pool.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// New creates a pool. The defaults are Core = GOMAXPROCS, Max = 4*Core and
// a one minute keep-alive.
func New(opts ...Option) *Pool {
	p := &Pool{
		core:      runtime.GOMAXPROCS(0),
		keepAlive: time.Minute,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.core < 1 {
		p.core = 1
	}
	if p.max == 0 {
		p.max = 4 * p.core
	}
	if p.max < p.core {
		p.max = p.core
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Submit enqueues task. It never blocks; it fails only after Close.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, task)

	// Grow while queued work outnumbers idle workers.
	if len(p.queue) > p.idle && p.workers < p.max {
		p.workers++
		p.wg.Add(1)
		go p.worker()
	}
	p.cond.Signal()
	return nil
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:   p.workers,
		Idle:      p.idle,
		Queued:    len(p.queue),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them to exit or for ctx to be done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool close: %w", ctx.Err())
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.run(task)
	}
}

// next blocks until a task is available. It returns false when the worker
// must exit: the pool is closed and drained, or the worker is surplus and
// stayed idle for keepAlive.
func (p *Pool) next() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deadline time.Time
	for len(p.queue) == 0 {
		if p.closed {
			p.workers--
			return nil, false
		}
		if p.workers > p.core {
			now := time.Now()
			switch {
			case deadline.IsZero():
				deadline = now.Add(p.keepAlive)
				timer := time.AfterFunc(p.keepAlive, func() {
					p.mu.Lock()
					p.cond.Broadcast()
					p.mu.Unlock()
				})
				defer timer.Stop()
			case !now.Before(deadline):
				p.workers--
				return nil, false
			}
		}
		p.idle++
		p.cond.Wait()
		p.idle--
	}

	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}

func (p *Pool) run(task func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		p.panics.Add(1)
		p.logger.Error("pool task panicked", "panic", r)
		if p.onPanic != nil {
			p.onPanic(r)
			return
		}
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
		panic(r)
	}()
	task()
	p.completed.Add(1)
}
