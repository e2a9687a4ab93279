package canopy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/runtime"
	"github.com/aretw0/canopy/pkg/adapters/goja"
	"github.com/aretw0/canopy/pkg/controller"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/loader"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/pool"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/session"
)

// Version is the canopy release, overridden at build time with -ldflags.
var Version = "0.1.0-dev"

// Bot is the high-level entry point of the library.
// It wires the engine, the worker pool, persistence and the session registry.
type Bot struct {
	engine   *runtime.Engine
	registry *session.Registry
	pool     *pool.Pool
	manager  *session.Manager
	logger   *slog.Logger
}

type config struct {
	evaluator   ports.Evaluator
	performer   ports.Performer
	controllers *controller.Registry
	roles       ports.RoleResolver
	initializer ports.Initializer
	fallback    ports.Fallback
	hooks       domain.LifecycleHooks
	logger      *slog.Logger

	store   ports.MemoryStore
	locker  ports.DistributedLocker
	lockTTL time.Duration

	poolOpts []pool.Option
	ctx      context.Context
}

// Option defines a functional option for configuring the Bot.
type Option func(*config)

// WithEvaluator sets the expression evaluator. Load defaults to JavaScript.
func WithEvaluator(ev ports.Evaluator) Option {
	return func(c *config) {
		c.evaluator = ev
	}
}

// WithPerformer sets the outbound call handler. It is required.
func WithPerformer(p ports.Performer) Option {
	return func(c *config) {
		c.performer = p
	}
}

// WithControllers sets the controller factories trees may name.
func WithControllers(reg *controller.Registry) Option {
	return func(c *config) {
		c.controllers = reg
	}
}

// WithRoleResolver resolves the role of each new session.
func WithRoleResolver(r ports.RoleResolver) Option {
	return func(c *config) {
		c.roles = r
	}
}

// WithInitializer seeds new sessions and lists the sessions created on Start.
func WithInitializer(i ports.Initializer) Option {
	return func(c *config) {
		c.initializer = i
	}
}

// WithFallback handles events no element resolved.
func WithFallback(f ports.Fallback) Option {
	return func(c *config) {
		c.fallback = f
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls merge.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithStore persists a snapshot of each session after every event.
func WithStore(store ports.MemoryStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithLocker guards snapshot access with a distributed lock.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(c *config) {
		c.locker = locker
		c.lockTTL = ttl
	}
}

// WithPool configures the shared worker pool.
func WithPool(opts ...pool.Option) Option {
	return func(c *config) {
		c.poolOpts = append(c.poolOpts, opts...)
	}
}

// WithContext sets the base context handed to every session.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		c.ctx = ctx
	}
}

// New creates a Bot executing root.
func New(root *domain.Element, opts ...Option) (*Bot, error) {
	c := &config{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return build(root, c)
}

// Load reads a YAML tree document and creates a Bot executing it.
// Expressions are checked and evaluated with the JavaScript evaluator unless
// WithEvaluator is given.
func Load(path string, opts ...Option) (*Bot, error) {
	c := &config{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.evaluator == nil {
		c.evaluator = goja.New(goja.WithLogger(c.logger))
	}
	if c.controllers == nil {
		c.controllers = controller.NewRegistry()
	}

	loadOpts := []loader.Option{loader.WithControllers(c.controllers)}
	if cmp, ok := c.evaluator.(loader.Compiler); ok {
		loadOpts = append(loadOpts, loader.WithCompiler(cmp))
	}
	root, err := loader.New(loadOpts...).LoadFile(path)
	if err != nil {
		return nil, err
	}
	return build(root, c)
}

func build(root *domain.Element, c *config) (*Bot, error) {
	if c.performer == nil {
		return nil, fmt.Errorf("a performer is required")
	}

	engineOpts := []runtime.EngineOption{
		runtime.WithPerformer(c.performer),
		runtime.WithLifecycleHooks(c.hooks),
		runtime.WithLogger(c.logger),
	}
	if c.evaluator != nil {
		engineOpts = append(engineOpts, runtime.WithEvaluator(c.evaluator))
	}
	if c.controllers != nil {
		engineOpts = append(engineOpts, runtime.WithControllers(c.controllers))
	}
	if c.roles != nil {
		engineOpts = append(engineOpts, runtime.WithRoleResolver(c.roles))
	}
	if c.initializer != nil {
		engineOpts = append(engineOpts, runtime.WithInitializer(c.initializer))
	}
	if c.fallback != nil {
		engineOpts = append(engineOpts, runtime.WithFallback(c.fallback))
	}
	engine, err := runtime.NewEngine(root, engineOpts...)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		engine: engine,
		pool:   pool.New(append([]pool.Option{pool.WithLogger(c.logger)}, c.poolOpts...)...),
		logger: c.logger,
	}
	regOpts := []session.Option{
		session.WithPool(b.pool),
		session.WithLogger(c.logger),
	}
	if c.ctx != nil {
		regOpts = append(regOpts, session.WithContext(c.ctx))
	}
	if c.store != nil {
		mgrOpts := []session.ManagerOption{session.WithManagerLogger(c.logger)}
		if c.locker != nil {
			mgrOpts = append(mgrOpts, session.WithLocker(c.locker))
			if c.lockTTL > 0 {
				mgrOpts = append(mgrOpts, session.WithLockTTL(c.lockTTL))
			}
		}
		b.manager = session.NewManager(c.store, mgrOpts...)
		regOpts = append(regOpts, session.WithPersistence(b.manager))
	}
	b.registry = session.NewRegistry(engine, regOpts...)
	return b, nil
}

// Start restores stored sessions and creates the initial ones.
func (b *Bot) Start(ctx context.Context) error {
	return b.registry.Start(ctx)
}

// Close saves and destroys every session, then stops the worker pool.
func (b *Bot) Close(ctx context.Context) error {
	err := b.registry.Close(ctx)
	if perr := b.pool.Close(ctx); perr != nil && err == nil {
		err = perr
	}
	return err
}

// OnEvent routes ev to its session, creating the session on first contact.
func (b *Bot) OnEvent(ev domain.Event) error {
	return b.registry.OnEvent(ev)
}

// CreateSession creates a session for id ahead of its first event.
func (b *Bot) CreateSession(id domain.Identity, languageHint string) error {
	return b.registry.CreateSession(id, languageHint)
}

// KillSession destroys the session of id.
func (b *Bot) KillSession(id domain.Identity) error {
	return b.registry.KillSession(id)
}

// ReinitializeSession replaces the session of id with a fresh one.
func (b *Bot) ReinitializeSession(id domain.Identity) error {
	return b.registry.ReinitializeSession(id)
}

// LoadSession installs a session from externally supplied memory.
func (b *Bot) LoadSession(mem *memory.Memory) error {
	return b.registry.LoadSession(mem)
}

// SessionMemory returns a snapshot of the memory of id.
func (b *Bot) SessionMemory(ctx context.Context, id domain.Identity) (*memory.Snapshot, error) {
	return b.registry.SessionMemory(ctx, id)
}

// RegisterDestructionCallback observes killed sessions.
func (b *Bot) RegisterDestructionCallback(fn session.DestructionCallback) {
	b.registry.RegisterDestructionCallback(fn)
}

// ClearCache drops the memoized owner.member of id and returns the previous value.
func (b *Bot) ClearCache(ctx context.Context, id domain.Identity, owner, member string) (any, error) {
	return b.registry.ClearCache(ctx, id, owner, member)
}

// Registry returns the session registry, for adapters such as the HTTP server.
func (b *Bot) Registry() *session.Registry {
	return b.registry
}

// Root returns the hierarchy the bot executes.
func (b *Bot) Root() *domain.Element {
	return b.engine.Root()
}

// Pool returns the shared worker pool.
func (b *Bot) Pool() *pool.Pool {
	return b.pool
}
