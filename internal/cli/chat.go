package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/config"
	"github.com/aretw0/canopy/pkg/adapters/console"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/fsnotify/fsnotify"
)

const (
	shutdownTimeout = 5 * time.Second
	reloadDelay     = 100 * time.Millisecond
)

// ChatOptions configures RunChat.
type ChatOptions struct {
	// Watch reloads the tree document when it changes. Sessions survive the
	// reload through the configured store.
	Watch bool
	// Plain disables markdown rendering and the banner.
	Plain bool

	In  io.Reader
	Out io.Writer
}

// RunChat talks to the bot over the terminal until EOF, !quit or ctx ends.
func RunChat(ctx context.Context, cfg *config.Config, opts ChatOptions, logger *slog.Logger) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	conOpts := []console.Option{
		console.WithIdentity(cfg.ConsoleIdentity()),
		console.WithLogger(logger),
	}
	if !opts.Plain && console.IsTerminal(out) {
		console.PrintBanner(out)
		if render, err := console.NewMarkdownRenderer(80); err == nil {
			conOpts = append(conOpts, console.WithRenderer(render))
		} else {
			logger.Warn("markdown rendering disabled", "err", err)
		}
	}
	con := console.New(opts.In, out, conOpts...)

	storage, err := OpenStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	live := &liveBot{}
	bot, err := startBot(ctx, cfg, storage, con, logger)
	if err != nil {
		return err
	}
	live.swap(bot)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := live.current().Close(closeCtx); err != nil {
			logger.Error("bot shutdown failed", "err", err)
		}
	}()

	if opts.Watch {
		reloaded, err := watchFile(ctx, cfg.Trees, logger)
		if err != nil {
			return err
		}
		go func() {
			for range reloaded {
				printSystemMessage(out, "Change detected in '%s'.", cfg.Trees)
				if err := live.reload(ctx, func() (*canopy.Bot, error) {
					return NewBot(cfg, storage, con, logger)
				}); err != nil {
					logger.Error("reload failed, keeping the previous trees", "err", err)
					printSystemMessage(out, "Reload failed: %v", err)
				}
			}
		}()
		printSystemMessage(out, "Watching '%s' for changes.", cfg.Trees)
	}

	err = con.Run(ctx, func(ev domain.Event) error {
		return live.current().OnEvent(ev)
	})
	if IsInterrupted(err) {
		return nil
	}
	return err
}

func startBot(ctx context.Context, cfg *config.Config, storage *Storage, con *console.Console, logger *slog.Logger) (*canopy.Bot, error) {
	bot, err := NewBot(cfg, storage, con, logger)
	if err != nil {
		return nil, err
	}
	if err := bot.Start(ctx); err != nil {
		bot.Close(context.Background())
		return nil, fmt.Errorf("failed to start bot: %w", err)
	}
	return bot, nil
}

// liveBot holds the bot events are routed to while reloads replace it.
type liveBot struct {
	mu  sync.RWMutex
	bot *canopy.Bot
}

func (l *liveBot) current() *canopy.Bot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bot
}

func (l *liveBot) swap(b *canopy.Bot) {
	l.mu.Lock()
	l.bot = b
	l.mu.Unlock()
}

// reload builds the next bot from the changed document, then closes the
// current one, which saves its sessions, and starts the next one so that it
// restores them. A document that fails to load leaves the current bot running.
func (l *liveBot) reload(ctx context.Context, build func() (*canopy.Bot, error)) error {
	next, err := build()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := l.bot.Close(closeCtx); err != nil {
		next.Close(closeCtx)
		return err
	}
	l.bot = next
	return next.Start(ctx)
}

// watchFile signals on the returned channel whenever path is written or
// replaced. The directory is watched because editors often swap files by
// rename.
func watchFile(ctx context.Context, path string, logger *slog.Logger) (<-chan struct{}, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		defer close(changed)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "err", err)
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				logger.Info("change detected, triggering reload", "event", ev.String())
				// Let the writer finish before reading the file.
				time.Sleep(reloadDelay)
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		}
	}()
	return changed, nil
}
