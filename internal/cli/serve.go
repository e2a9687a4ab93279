package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/config"
	canopyhttp "github.com/aretw0/canopy/pkg/adapters/http"
	"github.com/aretw0/canopy/pkg/adapters/mqtt"
	"github.com/aretw0/canopy/pkg/adapters/ws"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/observability"
	"github.com/aretw0/canopy/pkg/ports"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// RunServe listens on cfg.HTTP.Addr and serves until ctx ends.
func RunServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}
	return Serve(ctx, cfg, ln, logger)
}

// Serve runs the bot behind the HTTP API on ln. Outbound calls are streamed
// to WebSocket subscribers and, when a broker is configured, published over
// MQTT; metrics are served at /metrics. When ctx ends the server drains, then
// the sessions are saved and closed.
func Serve(ctx context.Context, cfg *config.Config, ln net.Listener, logger *slog.Logger) error {
	storage, err := OpenStorage(cfg, logger)
	if err != nil {
		ln.Close()
		return err
	}
	defer storage.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		ln.Close()
		return err
	}

	var bot *canopy.Bot
	sink := func(ev domain.Event) error { return bot.OnEvent(ev) }
	hub := ws.NewHub(ws.WithLogger(logger), ws.WithSink(sink))

	var performer ports.Performer = hub
	var bridge *mqtt.Bridge
	if cfg.MQTT.Broker != "" {
		bridge = newBridge(cfg, mqtt.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID), sink, logger)
		performer = ports.Tee(hub, bridge)
	}

	bot, err = NewBot(cfg, storage, performer, logger, canopy.WithLifecycleHooks(metrics.Hooks()))
	if err != nil {
		ln.Close()
		return err
	}
	if err := observability.RegisterGauges(reg, bot.Registry().Len, bot.Pool().Stats); err != nil {
		ln.Close()
		return err
	}
	if err := bot.Start(ctx); err != nil {
		ln.Close()
		bot.Close(context.Background())
		return err
	}
	if bridge != nil {
		if err := bridge.Start(ctx); err != nil {
			ln.Close()
			bot.Close(context.Background())
			return err
		}
		defer bridge.Stop()
	}

	srv := &http.Server{
		Handler: canopyhttp.NewHandler(bot.Registry(),
			canopyhttp.WithStreamer(hub),
			canopyhttp.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
			canopyhttp.WithVersion(canopy.Version),
			canopyhttp.WithLogger(logger),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("canopy server listening", "addr", ln.Addr().String(), "trees", cfg.Trees)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srvErr := srv.Shutdown(shutdownCtx)
		if srvErr != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", srvErr)
			srv.Close()
		}
		return errors.Join(srvErr, bot.Close(shutdownCtx))
	})
	return g.Wait()
}

func newBridge(cfg *config.Config, client paho.Client, sink mqtt.Sink, logger *slog.Logger) *mqtt.Bridge {
	return mqtt.New(client,
		mqtt.WithPrefix(cfg.MQTT.Prefix),
		mqtt.WithQoS(byte(cfg.MQTT.QoS)),
		mqtt.WithSink(sink),
		mqtt.WithLogger(logger),
	)
}
