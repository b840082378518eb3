package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/chatwire/internal/protocol"
	"github.com/jkaninda/chatwire/internal/taskpool"
)

// consumerLoop polls the connection for complete frames at a fixed small
// interval and interprets them by opcode. The poll cadence trades CPU
// burn against delivery latency; each tick drains everything available.
func (c *Conn) consumerLoop() {
	defer c.loops.Done()
	c.logger.Debug("frame consumer started", slog.Duration("poll", c.pollInterval()))

	ticker := time.NewTicker(c.pollInterval())
	defer ticker.Stop()

	for c.State() == StateReady {
		select {
		case <-c.stopping:
			return
		case <-ticker.C:
		}

		for {
			f := c.Receive()
			if f == nil {
				break
			}
			c.handleFrame(f)
		}
	}
}

func (c *Conn) handleFrame(f *protocol.Frame) {
	if c.m != nil {
		c.m.FramesReceivedTotal.WithLabelValues(f.Op.String()).Inc()
	}

	switch f.Op {
	case protocol.OpDispatch:
		c.handleDispatch(f)

	case protocol.OpHeartbeatAck:
		rtt := c.session.ObserveAck()
		c.observeLatency(rtt)
		c.logger.Debug("heartbeat ack", slog.Duration("rtt", rtt))

	case protocol.OpInvalidSession:
		c.logger.Warn("session terminated with invalid session")
		if c.m != nil {
			c.m.SessionsInvalidated.Inc()
		}
		c.requestTeardown("invalid session")

	default:
		// Forward compatible: unknown server opcodes are ignored.
		c.logger.Debug("ignoring frame", slog.String("opcode", f.Op.String()))
	}
}

// handleDispatch decodes an application event, advances the session
// sequence, and submits every subscriber callback to the task pool
// independently so one slow subscriber never delays the others or this
// loop.
func (c *Conn) handleDispatch(f *protocol.Frame) {
	ev, err := protocol.EventFromFrame(f)
	if err != nil {
		c.logger.Warn("dropping undecodable dispatch", slog.String("error", err.Error()))
		if c.m != nil {
			c.m.FramesDroppedTotal.Inc()
		}
		return
	}

	c.session.ObserveSequence(ev.Seq)

	if c.opts.Tracer != nil {
		_, span := c.opts.Tracer.Start(context.Background(), "gateway.dispatch",
			trace.WithAttributes(
				attribute.String("event.type", ev.Type),
				attribute.Int64("event.sequence", ev.Seq),
			))
		defer span.End()
	}

	handlers := c.bus.Resolve(ev.Type)
	for _, h := range handlers {
		h := h
		if err := c.pool.Submit(func() { h(ev) }); err != nil {
			c.logger.Warn("dropping event callback",
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
			if c.m != nil {
				c.m.DispatchDroppedTotal.WithLabelValues(ev.Type).Inc()
			}
			if errors.Is(err, taskpool.ErrPoolClosed) {
				return
			}
			continue
		}
		if c.m != nil {
			c.m.EventsDispatchedTotal.WithLabelValues(ev.Type).Inc()
		}
	}
}
