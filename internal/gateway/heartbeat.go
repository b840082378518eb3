package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// heartbeatLoop sends liveness pings at the server-dictated interval,
// ticking at sub-interval granularity and firing one tick early so
// scheduling jitter cannot push a send past the server's deadline. There
// is deliberately no catch-up for missed ticks: a missed heartbeat is a
// liveness failure that should surface as a dropped session.
func (c *Conn) heartbeatLoop() {
	defer c.loops.Done()

	interval := c.session.HeartbeatInterval()
	tick := c.heartbeatTick()
	c.logger.Debug("heartbeat loop started",
		slog.Duration("interval", interval),
		slog.Duration("tick", tick),
	)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	// The handshake's baseline heartbeat counts as the last send.
	lastSent := time.Now()

	for c.State() == StateReady {
		select {
		case <-c.stopping:
			return
		case <-ticker.C:
		}

		if time.Since(lastSent) < interval-tick {
			continue
		}

		c.session.MarkPingSent()
		if err := c.sendHeartbeat(context.Background()); err != nil {
			c.logger.Warn("heartbeat send failed", slog.String("error", err.Error()))
			c.requestTeardown("heartbeat write failed")
			return
		}
		lastSent = time.Now()
		c.logger.Debug("heartbeat", slog.Int64("sequence", c.session.Sequence()))

		c.publishPing()
	}
}

// publishPing mirrors the current round-trip into the user-visible
// presence line. Best-effort: a failed status write never ends the loop.
func (c *Conn) publishPing() {
	ping := c.session.Latency().Milliseconds()
	if err := c.UpdateStatus(context.Background(), fmt.Sprintf("Ping: %dms", ping)); err != nil {
		c.logger.Debug("status update failed", slog.String("error", err.Error()))
	}
}
