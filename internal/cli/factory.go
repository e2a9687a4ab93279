package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/config"
	"github.com/aretw0/canopy/pkg/adapters/bolt"
	"github.com/aretw0/canopy/pkg/adapters/file"
	memstore "github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/adapters/redis"
	"github.com/aretw0/canopy/pkg/adapters/sqlite"
	"github.com/aretw0/canopy/pkg/observability"
	"github.com/aretw0/canopy/pkg/persistence/middleware"
	"github.com/aretw0/canopy/pkg/pool"
	"github.com/aretw0/canopy/pkg/ports"
)

// Storage is the snapshot store selected by the configuration, wrapped with
// the configured middleware.
type Storage struct {
	Store  ports.MemoryStore
	Locker ports.DistributedLocker

	closers []io.Closer
}

// OpenStorage opens the store named by cfg.Store.Driver.
func OpenStorage(cfg *config.Config, logger *slog.Logger) (*Storage, error) {
	s := &Storage{}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		s.Store = memstore.NewStore()
	case config.DriverFile:
		s.Store = file.New(cfg.Store.Path)
	case config.DriverBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		db, err := bolt.Open(cfg.Store.Path, bolt.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		s.Store = db
		s.closers = append(s.closers, db)
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		db, err := sqlite.Open(cfg.Store.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		s.Store = db
		s.closers = append(s.closers, db)
	case config.DriverRedis:
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Store.TTL),
			redis.WithLogger(logger),
		)
		s.Store = rs
		s.Locker = redis.NewLocker(rs.Client(), cfg.Redis.Prefix)
		s.closers = append(s.closers, rs.Client())
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalid, cfg.Store.Driver)
	}

	mws, err := storeMiddleware(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Store = middleware.Chain(s.Store, mws...)
	logger.Debug("store opened", "driver", cfg.Store.Driver, "middleware", len(mws))
	return s, nil
}

// storeMiddleware masks PII before encrypting, so the outermost layer sees plain snapshots.
func storeMiddleware(cfg *config.Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.Security.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.Security.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	active, fallback, err := cfg.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return mws, nil
}

// Close releases database files and connections.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// NewBot loads cfg.Trees and builds a Bot persisting to storage.
// Lifecycle events are logged at debug level; metrics hooks are added by the caller.
func NewBot(cfg *config.Config, storage *Storage, performer ports.Performer, logger *slog.Logger, extra ...canopy.Option) (*canopy.Bot, error) {
	opts := []canopy.Option{
		canopy.WithPerformer(performer),
		canopy.WithLogger(logger),
		canopy.WithLifecycleHooks(observability.LogHooks(logger)),
		canopy.WithPool(poolOptions(cfg)...),
	}
	if storage != nil {
		opts = append(opts, canopy.WithStore(storage.Store))
		if storage.Locker != nil {
			opts = append(opts, canopy.WithLocker(storage.Locker, cfg.Store.LockTTL))
		}
	}
	opts = append(opts, extra...)

	bot, err := canopy.Load(cfg.Trees, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing bot: %w", err)
	}
	return bot, nil
}

func poolOptions(cfg *config.Config) []pool.Option {
	var opts []pool.Option
	if cfg.Pool.Core > 0 || cfg.Pool.Max > 0 {
		core := cfg.Pool.Core
		if core == 0 {
			core = min(runtime.GOMAXPROCS(0), cfg.Pool.Max)
		}
		opts = append(opts, pool.WithSize(core, cfg.Pool.Max))
	}
	if cfg.Pool.KeepAlive > 0 {
		opts = append(opts, pool.WithKeepAlive(cfg.Pool.KeepAlive))
	}
	return opts
}
