package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/chatwire/internal/config"
	"github.com/jkaninda/chatwire/internal/eventbus"
	"github.com/jkaninda/chatwire/internal/gateway"
	"github.com/jkaninda/chatwire/internal/observability"
	"github.com/jkaninda/chatwire/internal/presence"
	"github.com/jkaninda/chatwire/internal/rest"
	"github.com/jkaninda/chatwire/internal/statusapi"
	"github.com/jkaninda/chatwire/internal/taskpool"
	goutils "github.com/jkaninda/go-utils"
)

var (
	connectConfigPath string
	connectGatewayURL string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the gateway and dispatch events",
	RunE:  runConnect,
}

func init() {
	// Register flags on both root and connect so that
	// `chatwire --config path` and `chatwire connect --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, connectCmd} {
		cmd.Flags().StringVar(&connectConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&connectGatewayURL, "gateway-url", "", "override the gateway websocket URL")
	}
}

// connHolder tracks the live connection across reconnect attempts so the
// status API and presence rotator always see the current one.
type connHolder struct {
	mu   sync.RWMutex
	conn *gateway.Conn
}

func (h *connHolder) set(c *gateway.Conn) {
	h.mu.Lock()
	h.conn = c
	h.mu.Unlock()
}

func (h *connHolder) get() *gateway.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

func (h *connHolder) status() gateway.Status {
	if c := h.get(); c != nil {
		return c.Status()
	}
	return gateway.Status{State: gateway.StateDisconnected.String()}
}

// runConnect starts chatwire in connect mode: resolve the gateway
// endpoint, establish a session, and keep re-establishing it until
// shutdown.
func runConnect(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("CHATWIRE_CONFIG", connectConfigPath))
	if err != nil {
		return err
	}
	if connectGatewayURL != "" {
		cfg.GatewayURL = connectGatewayURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("starting in connect mode", slog.String("config", connectConfigPath))

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return err
	}
	defer obs.Shutdown(context.Background())

	metrics := obs.MetricsCollectorOrNil()
	var tracer trace.Tracer
	if ts := obs.TracerSetupOrNil(); ts != nil {
		tracer = ts.Tracer()
	}

	bus := eventbus.New(logger)
	pool := taskpool.New(taskpool.Config{
		Workers:   cfg.Pool.Workers,
		QueueSize: cfg.Pool.QueueSize,
	}, metrics, logger)
	defer pool.Stop()

	registerHandlers(bus, logger)

	restClient := rest.New(rest.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.Token,
	}, logger, rest.WithMetrics(metrics), rest.WithTracer(tracer))

	// Resolve the websocket endpoint unless pinned in config.
	gatewayURL := cfg.GatewayURL
	if gatewayURL == "" {
		gw, err := restClient.GetGatewayBot(ctx)
		if err != nil {
			return fmt.Errorf("resolving gateway endpoint: %w", err)
		}
		gatewayURL = gw.URL
		logger.Info("gateway endpoint resolved",
			slog.String("url", gw.URL),
			slog.Int("recommended_shards", gw.Shards),
		)
	}

	holder := &connHolder{}

	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("gateway", func(_ context.Context) error {
			if c := holder.get(); c != nil && c.Ready() {
				return nil
			}
			return errors.New("gateway session not ready")
		})
	}

	// Status API (loopback health, status snapshot, metrics).
	var statusSrv *statusapi.Server
	if cfg.StatusAPI != nil && cfg.StatusAPI.Enabled {
		statusCfg := statusapi.Config{ListenAddr: cfg.StatusAPI.Addr()}
		if obs != nil {
			statusCfg.HealthChecker = obs.Health
			statusCfg.Metrics = metrics
			statusCfg.Tracer = tracer
			if metrics != nil {
				statusCfg.MetricsRegistry = metrics.Registry
			}
		}
		statusSrv = statusapi.New(statusCfg, holder.status, logger)
		go func() {
			if err := statusSrv.Start(ctx); err != nil {
				logger.Error("status api exited", slog.String("error", err.Error()))
			}
		}()
	}

	// Presence rotation.
	if cfg.Presence != nil {
		rotator, err := presence.New(cfg.Presence.Schedule, cfg.Presence.Statuses,
			func(ctx context.Context, status string) error {
				c := holder.get()
				if c == nil || !c.Ready() {
					return errors.New("gateway session not ready")
				}
				return c.UpdateStatus(ctx, status)
			}, logger)
		if err != nil {
			return err
		}
		go rotator.Run(ctx)
		logger.Info("presence rotation enabled", slog.String("schedule", cfg.Presence.Schedule))
	}

	err = supervise(ctx, cfg, gatewayURL, holder, bus, pool, metrics, tracer, logger)

	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if stopErr := statusSrv.Stop(shutdownCtx); stopErr != nil {
			logger.Error("stopping status api", slog.String("error", stopErr.Error()))
		}
	}

	return err
}

// supervise owns the reconnect loop: one gateway.Conn per attempt, the
// bus and pool shared across all of them. Auth rejection is terminal;
// everything else backs off exponentially up to the configured cap.
func supervise(
	ctx context.Context,
	cfg *config.Config,
	gatewayURL string,
	holder *connHolder,
	bus *eventbus.Bus,
	pool *taskpool.Pool,
	metrics *observability.MetricsCollector,
	tracer trace.Tracer,
	logger *slog.Logger,
) error {
	backoff := cfg.Reconnect.Base()
	attempts := 0

	for {
		conn := gateway.New(gateway.Options{
			URL:              gatewayURL,
			Token:            cfg.Token,
			HandshakeTimeout: cfg.Gateway.HandshakeTimeout(),
			PollInterval:     cfg.Gateway.PollInterval(),
			Logger:           logger,
			Metrics:          metrics,
			Tracer:           tracer,
		}, bus, pool)

		if err := conn.Connect(ctx); err != nil {
			var cerr *gateway.ConnectError
			if errors.As(err, &cerr) && cerr.Reason == gateway.ReasonAuthRejected {
				return fmt.Errorf("gateway rejected credentials: %w", err)
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("connect failed", slog.String("error", err.Error()))
		} else {
			holder.set(conn)
			attempts = 0
			backoff = cfg.Reconnect.Base()
			logger.Info("gateway session established",
				slog.String("endpoint", gatewayURL),
				slog.Int64("latency_ms", conn.Latency().Milliseconds()),
			)

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
				holder.set(nil)
				conn.Disconnect()
				return nil
			case <-conn.Done():
				holder.set(nil)
				conn.Disconnect() // Join the loops; idempotent.
				logger.Warn("gateway session ended",
					slog.Int64("last_sequence", conn.Sequence()),
				)
			}
		}

		attempts++
		if cfg.Reconnect != nil && cfg.Reconnect.MaxAttempts > 0 && attempts > cfg.Reconnect.MaxAttempts {
			return fmt.Errorf("giving up after %d reconnect attempts", cfg.Reconnect.MaxAttempts)
		}

		logger.Info("reconnecting",
			slog.Int("attempt", attempts),
			slog.String("backoff", backoff.String()),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if limit := cfg.Reconnect.Max(); backoff > limit {
			backoff = limit
		}
	}
}
