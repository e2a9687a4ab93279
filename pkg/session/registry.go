package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/runtime"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/pool"
	"github.com/google/uuid"
)

// DestructionCallback observes a killed session's final memory.
type DestructionCallback func(id domain.Identity, mem *memory.Memory)

// Registry maps identities to live sessions and dispatches events onto the
// shared worker pool.
type Registry struct {
	engine  *runtime.Engine
	pool    *pool.Pool
	ownPool bool
	persist *Manager
	logger  *slog.Logger
	ctx     context.Context

	sessions sync.Map // domain.Identity -> *runtime.Session
	count    atomic.Int64
	createMu sync.Mutex

	cbMu      sync.RWMutex
	callbacks []DestructionCallback

	closing atomic.Bool
}

// Option configures the Registry.
type Option func(*Registry)

// WithPool shares an existing pool. Without it the registry creates and owns one.
func WithPool(p *pool.Pool) Option {
	return func(r *Registry) {
		r.pool = p
	}
}

// WithPersistence saves a snapshot after every event, deletes it when the
// session is killed and restores stored sessions on Start.
func WithPersistence(m *Manager) Option {
	return func(r *Registry) {
		r.persist = m
	}
}

// WithLogger configures a logger for the Registry and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithContext sets the base context handed to sessions. Its values reach
// every collaborator; its cancellation is ignored.
func WithContext(ctx context.Context) Option {
	return func(r *Registry) {
		r.ctx = ctx
	}
}

// NewRegistry creates a registry executing engine.
func NewRegistry(engine *runtime.Engine, opts ...Option) *Registry {
	r := &Registry{
		engine: engine,
		logger: logging.NewNop(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = pool.New(pool.WithLogger(r.logger))
		r.ownPool = true
	}
	return r
}

// Engine returns the engine shared by every session.
func (r *Registry) Engine() *runtime.Engine { return r.engine }

// Pool returns the worker pool draining the sessions.
func (r *Registry) Pool() *pool.Pool { return r.pool }

// Len is the number of live sessions.
func (r *Registry) Len() int { return int(r.count.Load()) }

// Sessions lists the live identities.
func (r *Registry) Sessions() []domain.Identity {
	var ids []domain.Identity
	r.sessions.Range(func(k, _ any) bool {
		ids = append(ids, k.(domain.Identity))
		return true
	})
	return ids
}

// RegisterDestructionCallback adds fn to the callbacks run when a session is killed.
func (r *Registry) RegisterDestructionCallback(fn DestructionCallback) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// OnEvent routes ev to its session, creating the session on first contact.
func (r *Registry) OnEvent(ev domain.Event) error {
	if r.closing.Load() {
		return pool.ErrClosed
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	// A session killed concurrently rejects the event; retry once on a fresh one.
	for range 2 {
		s := r.getOrCreate(ev.Identity, ev.Language)
		err := s.Enqueue(ev)
		if !errors.Is(err, domain.ErrSessionKilled) {
			return err
		}
		if r.sessions.CompareAndDelete(ev.Identity, s) {
			r.count.Add(-1)
		}
	}
	return domain.ErrSessionKilled
}

// CreateSession creates a session for id. languageHint seeds the memory language.
func (r *Registry) CreateSession(id domain.Identity, languageHint string) error {
	mem := memory.New(id, r.engine.Root())
	mem.SetLanguage(languageHint)
	return r.install(mem, false)
}

// LoadSession installs a session from externally supplied memory,
// rejecting duplicates. Tree executors are rebuilt from the memory's stack.
func (r *Registry) LoadSession(mem *memory.Memory) error {
	return r.install(mem, true)
}

// KillSession removes and destroys the session of id.
func (r *Registry) KillSession(id domain.Identity) error {
	v, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.count.Add(-1)
	v.(*runtime.Session).Kill()
	return nil
}

// ReinitializeSession kills the session of id and creates a fresh one,
// carrying over its language.
func (r *Registry) ReinitializeSession(id domain.Identity) error {
	v, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.count.Add(-1)
	old := v.(*runtime.Session)
	lang := old.Language()
	old.Kill()
	return r.CreateSession(id, lang)
}

// Inspect runs fn against the memory of id on the session worker,
// serialized with its events, and waits for it.
func (r *Registry) Inspect(ctx context.Context, id domain.Identity, fn func(mem *memory.Memory)) error {
	v, ok := r.sessions.Load(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return v.(*runtime.Session).Inspect(ctx, fn)
}

// SessionMemory returns a snapshot of the memory of id.
func (r *Registry) SessionMemory(ctx context.Context, id domain.Identity) (*memory.Snapshot, error) {
	var snap *memory.Snapshot
	err := r.Inspect(ctx, id, func(mem *memory.Memory) {
		snap = mem.Snapshot()
	})
	return snap, err
}

// ClearCache drops the memoized owner.member of id and returns the previous
// value, or nil when none was cached.
func (r *Registry) ClearCache(ctx context.Context, id domain.Identity, owner, member string) (any, error) {
	var prev any
	err := r.Inspect(ctx, id, func(mem *memory.Memory) {
		prev, _ = r.engine.ClearCache(mem, owner, member)
	})
	return prev, err
}

// Start restores persisted sessions and creates the initializer's initial sessions.
func (r *Registry) Start(ctx context.Context) error {
	if r.persist != nil {
		ids, err := r.persist.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list stored sessions: %w", err)
		}
		for _, id := range ids {
			mem, err := r.persist.Restore(ctx, r.engine.Root(), id)
			if err != nil {
				r.logger.Warn("skipping stored session", "session", id.String(), "err", err)
				continue
			}
			if err := r.LoadSession(mem); err != nil && !errors.Is(err, domain.ErrSessionExists) {
				return err
			}
		}
	}

	if init := r.engine.Initializer(); init != nil {
		ids, err := init.InitialSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list initial sessions: %w", err)
		}
		for _, id := range ids {
			if err := r.CreateSession(id, ""); err != nil && !errors.Is(err, domain.ErrSessionExists) {
				return err
			}
		}
	}
	r.logger.Info("registry started", "sessions", r.Len())
	return nil
}

// Close stops accepting events, saves every session when persistence is
// enabled, destroys the sessions and stops the pool if the registry owns it.
// Stored snapshots are kept.
func (r *Registry) Close(ctx context.Context) error {
	r.closing.Store(true)

	var live []*runtime.Session
	r.sessions.Range(func(k, v any) bool {
		r.sessions.Delete(k)
		r.count.Add(-1)
		live = append(live, v.(*runtime.Session))
		return true
	})

	var errs []error
	for _, s := range live {
		if r.persist != nil {
			err := s.Inspect(ctx, func(mem *memory.Memory) {
				if err := r.persist.Save(ctx, mem.Identity(), mem.Snapshot()); err != nil {
					r.logger.Error("failed to save session", "session", mem.Identity().String(), "err", err)
				}
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
		s.Kill()
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		}
	}

	if r.ownPool {
		if err := r.pool.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) getOrCreate(id domain.Identity, lang string) *runtime.Session {
	if v, ok := r.sessions.Load(id); ok {
		return v.(*runtime.Session)
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()
	if v, ok := r.sessions.Load(id); ok {
		return v.(*runtime.Session)
	}
	mem := memory.New(id, r.engine.Root())
	mem.SetLanguage(lang)
	s := r.newSession(mem, false)
	r.sessions.Store(id, s)
	r.count.Add(1)
	return s
}

func (r *Registry) install(mem *memory.Memory, restored bool) error {
	if r.closing.Load() {
		return pool.ErrClosed
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()
	id := mem.Identity()
	if _, ok := r.sessions.Load(id); ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, id)
	}
	r.sessions.Store(id, r.newSession(mem, restored))
	r.count.Add(1)
	return nil
}

func (r *Registry) newSession(mem *memory.Memory, restored bool) *runtime.Session {
	return runtime.NewSession(r.ctx, mem, restored, runtime.SessionConfig{
		Engine:     r.engine,
		Pool:       r.pool,
		Logger:     r.logger,
		AfterEvent: r.afterEvent,
		OnDestroy:  r.onDestroy,
	})
}

func (r *Registry) afterEvent(ctx context.Context, s *runtime.Session, mem *memory.Memory, _ *domain.Event, _ runtime.Outcome, _ error) {
	if r.persist == nil || s.Killed() {
		return
	}
	if err := r.persist.Save(ctx, s.ID(), mem.Snapshot()); err != nil {
		r.logger.Error("failed to save session", "session", s.ID().String(), "err", err)
	}
}

func (r *Registry) onDestroy(ctx context.Context, s *runtime.Session, mem *memory.Memory) {
	r.cbMu.RLock()
	callbacks := append([]DestructionCallback(nil), r.callbacks...)
	r.cbMu.RUnlock()
	for _, fn := range callbacks {
		fn(s.ID(), mem)
	}

	if r.persist == nil || r.closing.Load() {
		return
	}
	// A reinitialized session may already own the identity again.
	if _, ok := r.sessions.Load(s.ID()); ok {
		return
	}
	if err := r.persist.Delete(ctx, s.ID()); err != nil {
		r.logger.Warn("failed to delete session snapshot", "session", s.ID().String(), "err", err)
	}
}
