// Package gateway implements the persistent client for the event-driven
// gateway protocol: the connection handshake state machine, the heartbeat
// liveness loop, and the frame consumer that feeds decoded events to the
// subscription bus.
//
// A Conn is single-session: Connect performs one handshake and Disconnect
// ends it for good. Reconnect policy lives in the supervising runner,
// which builds a fresh Conn against the same (process-lifetime) bus and
// task pool, so subscriptions survive reconnects.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/chatwire/internal/eventbus"
	"github.com/jkaninda/chatwire/internal/observability"
	"github.com/jkaninda/chatwire/internal/protocol"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPollInterval     = 50 * time.Millisecond
	defaultHeartbeatTick    = time.Second
	writeTimeout            = 10 * time.Second

	// Close code the server uses for failed authentication.
	closeAuthFailed websocket.StatusCode = 4004
)

// Submitter runs dispatched callbacks off the connection's loops.
// Fire-and-forget: the connection never observes a result.
type Submitter interface {
	Submit(task func()) error
}

// Options configures a Conn.
type Options struct {
	URL        string // Gateway endpoint, without version/encoding query.
	Token      string
	ClientName string // Reported in Identify properties. Default: "chatwire".

	HandshakeTimeout time.Duration // Per handshake step. Default: 10s.
	PollInterval     time.Duration // Consumer poll cadence. Default: 50ms.
	HeartbeatTick    time.Duration // Scheduler granularity. Default: 1s.

	Logger  *slog.Logger
	Metrics *observability.MetricsCollector // nil = unmetered
	Tracer  trace.Tracer                    // nil = no spans
}

// Conn owns the gateway socket and the session state shared by the
// heartbeat and consumer loops.
type Conn struct {
	opts       Options
	bus        *eventbus.Bus
	pool       Submitter
	logger     *slog.Logger
	m          *observability.MetricsCollector
	instanceID string

	state   atomic.Int32
	session Session

	ws      *websocket.Conn
	writeMu sync.Mutex // Serializes all socket writes; interleaved partial writes would corrupt frame boundaries.

	dec   protocol.Decoder
	inbox chan []byte

	stopping     chan struct{}
	teardownOnce sync.Once
	loops        sync.WaitGroup
}

// New creates a connection against the given bus and task pool. The bus
// and pool outlive the connection.
func New(opts Options, bus *eventbus.Bus, pool Submitter) *Conn {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ClientName == "" {
		opts.ClientName = "chatwire"
	}
	c := &Conn{
		opts:       opts,
		bus:        bus,
		pool:       pool,
		logger:     opts.Logger,
		m:          opts.Metrics,
		instanceID: uuid.New().String(),
		inbox:      make(chan []byte, 64),
		stopping:   make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the current lifecycle phase.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Ready reports whether the session is established and both loops run.
func (c *Conn) Ready() bool {
	return c.State() == StateReady
}

// Done is closed when the connection begins tearing down, whether from
// Disconnect, a dropped socket, or a server-issued invalidation.
func (c *Conn) Done() <-chan struct{} {
	return c.stopping
}

// Sequence returns the last observed dispatch sequence.
func (c *Conn) Sequence() int64 {
	return c.session.Sequence()
}

// Latency returns the last observed heartbeat round trip.
func (c *Conn) Latency() time.Duration {
	return c.session.Latency()
}

// Status is a point-in-time snapshot for status reporting.
type Status struct {
	State     string    `json:"state"`
	Sequence  int64     `json:"sequence"`
	LatencyMS int64     `json:"latency_ms"`
	ReadyAt   time.Time `json:"ready_at,omitzero"`
	Endpoint  string    `json:"endpoint"`
}

// Status reports the connection's current state for the status API.
func (c *Conn) Status() Status {
	return Status{
		State:     c.State().String(),
		Sequence:  c.session.Sequence(),
		LatencyMS: c.session.Latency().Milliseconds(),
		ReadyAt:   c.session.ReadyAt(),
		Endpoint:  c.opts.URL,
	}
}

// Connect opens the socket and drives the handshake: receive Hello,
// exchange a baseline heartbeat/ack pair, send Identify, mark Ready, and
// start the heartbeat and consumer loops. On failure it returns a
// *ConnectError and the Conn is back in Disconnected; it never retries
// internally. A Conn whose session already ended stays ended: further
// Connect calls return ErrConnReused.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	select {
	case <-c.stopping:
		// A previous session ran on this Conn; its teardown channel is
		// closed for good, so freshly started loops would exit at once.
		c.state.Store(int32(StateDisconnected))
		return ErrConnReused
	default:
	}
	c.session.Reset()

	c.logger.Info("connecting to gateway",
		slog.String("url", c.opts.URL),
		slog.String("instance_id", c.instanceID),
	)

	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, c.dialURL(), nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return c.connectFailed(classifyHandshakeErr(err, "dialing gateway"))
	}
	ws.SetReadLimit(1 << 22)
	c.ws = ws

	if err := c.handshake(ctx); err != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "handshake failed")
		c.ws = nil
		c.state.Store(int32(StateDisconnected))
		var ce *ConnectError
		if errors.As(err, &ce) {
			return c.connectFailed(ce)
		}
		return c.connectFailed(&ConnectError{Reason: ReasonTransportError, Err: err})
	}

	c.state.Store(int32(StateReady))
	c.session.MarkReady()
	if c.m != nil {
		c.m.ConnectsTotal.WithLabelValues("success").Inc()
	}

	c.loops.Add(3)
	go c.readerLoop()
	go c.heartbeatLoop()
	go c.consumerLoop()

	c.logger.Info("gateway session ready",
		slog.Duration("heartbeat_interval", c.session.HeartbeatInterval()),
		slog.Duration("baseline_latency", c.session.Latency()),
	)
	return nil
}

// handshake runs the three blocking steps before the socket switches to
// the polled, non-blocking regime. Each step carries its own timeout so a
// non-responsive peer cannot hang Connect.
func (c *Conn) handshake(ctx context.Context) error {
	// Step 1: Hello.
	c.state.Store(int32(StateAwaitingHello))
	f, err := c.readHandshakeFrame(ctx, "awaiting hello")
	if err != nil {
		return err
	}
	if f.Op != protocol.OpHello {
		return &ConnectError{Reason: ReasonTransportError, Err: fmt.Errorf("expected hello, got %s", f.Op)}
	}
	var hello protocol.HelloPayload
	if err := f.DecodePayload(&hello); err != nil {
		return &ConnectError{Reason: ReasonTransportError, Err: fmt.Errorf("hello payload: %w", err)}
	}
	c.session.SetHeartbeatInterval(time.Duration(hello.HeartbeatIntervalMS) * time.Millisecond)

	// Step 2: baseline heartbeat/ack pair for the first latency sample.
	c.session.MarkPingSent()
	if err := c.sendHeartbeat(ctx); err != nil {
		return &ConnectError{Reason: ReasonTransportError, Err: err}
	}
	f, err = c.readHandshakeFrame(ctx, "awaiting heartbeat ack")
	if err != nil {
		return err
	}
	switch f.Op {
	case protocol.OpHeartbeatAck:
		rtt := c.session.ObserveAck()
		c.observeLatency(rtt)
	case protocol.OpInvalidSession:
		return &ConnectError{Reason: ReasonAuthRejected, Err: ErrSessionInvalidated}
	default:
		return &ConnectError{Reason: ReasonTransportError, Err: fmt.Errorf("expected heartbeat ack, got %s", f.Op)}
	}

	// Step 3: Identify.
	c.state.Store(int32(StateIdentifying))
	identify, err := protocol.NewFrame(protocol.OpIdentify, protocol.IdentifyPayload{
		Token: c.opts.Token,
		Properties: protocol.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: c.opts.ClientName,
			Device:  c.opts.ClientName,
		},
		LargeThreshold: 50,
		Compress:       false,
	})
	if err != nil {
		return err
	}
	if err := c.writeFrame(ctx, identify); err != nil {
		return classifyHandshakeErr(err, "sending identify")
	}
	return nil
}

// readHandshakeFrame blocks for one complete frame with a per-step
// timeout. Only used before Ready; after that the reader loop owns the
// socket.
func (c *Conn) readHandshakeFrame(ctx context.Context, step string) (*protocol.Frame, error) {
	stepCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	defer cancel()

	for {
		f, err := c.dec.Next()
		if err != nil {
			return nil, &ConnectError{Reason: ReasonTransportError, Err: fmt.Errorf("%s: %w", step, err)}
		}
		if f != nil {
			return f, nil
		}

		_, data, err := c.ws.Read(stepCtx)
		if err != nil {
			return nil, classifyHandshakeErr(err, step)
		}
		c.dec.Feed(data)
	}
}

// classifyHandshakeErr maps a transport error during the handshake onto
// the ConnectError taxonomy.
func classifyHandshakeErr(err error, step string) *ConnectError {
	wrapped := fmt.Errorf("%s: %w", step, err)
	switch {
	case websocket.CloseStatus(err) == closeAuthFailed:
		return &ConnectError{Reason: ReasonAuthRejected, Err: wrapped}
	case errors.Is(err, context.DeadlineExceeded):
		return &ConnectError{Reason: ReasonHandshakeTimeout, Err: wrapped}
	default:
		return &ConnectError{Reason: ReasonTransportError, Err: wrapped}
	}
}

func (c *Conn) connectFailed(ce *ConnectError) error {
	if c.m != nil {
		c.m.ConnectsTotal.WithLabelValues(string(ce.Reason)).Inc()
	}
	return ce
}

// Disconnect tears the session down: it flips the state, stops both
// loops, waits for them to terminate, and closes the socket. Idempotent
// and safe to call from any goroutine; once it returns, neither loop is
// executing. Callbacks already handed to the task pool are not cancelled.
func (c *Conn) Disconnect() {
	c.state.CompareAndSwap(int32(StateReady), int32(StateDisconnecting))
	c.teardownOnce.Do(func() { close(c.stopping) })
	c.loops.Wait()

	if c.ws != nil {
		_ = c.ws.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if c.state.Swap(int32(StateDisconnected)) != int32(StateDisconnected) {
		c.logger.Info("disconnected from gateway")
	}
}

// requestTeardown asks for session teardown from inside a loop (fatal
// I/O, invalid session). Only the Ready→Disconnecting transition is
// taken, so concurrent requests and an in-progress Disconnect compose.
func (c *Conn) requestTeardown(reason string) {
	if c.state.CompareAndSwap(int32(StateReady), int32(StateDisconnecting)) {
		c.logger.Warn("gateway session ending", slog.String("reason", reason))
		c.teardownOnce.Do(func() { close(c.stopping) })
	}
}

// Send serializes and writes a frame. Once the peer is known to be gone
// the session is already being torn down and the write is a best-effort
// no-op; any other transport failure is returned to the caller.
func (c *Conn) Send(ctx context.Context, f *protocol.Frame) error {
	return c.writeFrame(ctx, f)
}

func (c *Conn) writeFrame(ctx context.Context, f *protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.ws == nil {
		return fmt.Errorf("writing %s frame: not connected", f.Op)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := c.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		if isPeerClosed(err) || c.State() == StateDisconnecting || c.State() == StateDisconnected {
			// Best-effort once the session is torn down.
			c.requestTeardown("peer closed connection on write")
			return nil
		}
		return fmt.Errorf("writing %s frame: %w", f.Op, err)
	}

	if c.m != nil {
		c.m.FramesSentTotal.WithLabelValues(f.Op.String()).Inc()
	}
	return nil
}

// sendHeartbeat writes a heartbeat frame echoing the last sequence.
func (c *Conn) sendHeartbeat(ctx context.Context) error {
	f, err := protocol.NewFrame(protocol.OpHeartbeat, c.session.Sequence())
	if err != nil {
		return err
	}
	return c.writeFrame(ctx, f)
}

// UpdateStatus publishes a presence line (for example the current ping).
func (c *Conn) UpdateStatus(ctx context.Context, status string) error {
	f, err := protocol.NewFrame(protocol.OpStatusUpdate, protocol.StatusUpdatePayload{
		Game: protocol.StatusGame{Name: status},
	})
	if err != nil {
		return err
	}
	return c.writeFrame(ctx, f)
}

// Receive returns the next complete frame, or nil when none is currently
// available. A malformed frame is dropped with a logged warning; a peer
// close is handled by the reader loop (state flip) and also surfaces here
// as nil. Receive never blocks.
func (c *Conn) Receive() *protocol.Frame {
	for {
		if f := c.nextDecoded(); f != nil {
			return f
		}
		select {
		case data := <-c.inbox:
			c.dec.Feed(data)
		default:
			return nil
		}
	}
}

func (c *Conn) nextDecoded() *protocol.Frame {
	f, err := c.dec.Next()
	if err != nil {
		c.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
		if c.m != nil {
			c.m.FramesDroppedTotal.Inc()
		}
		return nil
	}
	return f
}

// readerLoop is the socket's single reader once Ready: it moves raw
// message bytes into the inbox the consumer polls. On a transport error
// in steady state it requests teardown and exits; that is an expected
// operational event, not an escalated failure.
func (c *Conn) readerLoop() {
	defer c.loops.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.stopping
		cancel()
	}()

	for c.State() == StateReady {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if c.State() == StateReady {
				if isPeerClosed(err) {
					c.requestTeardown("peer closed connection")
				} else {
					c.requestTeardown(fmt.Sprintf("read failed: %v", err))
				}
			}
			return
		}
		select {
		case c.inbox <- data:
		case <-c.stopping:
			return
		}
	}
}

// isPeerClosed reports whether the error indicates the peer ended the
// connection (close frame, reset, or EOF) rather than a local fault.
func isPeerClosed(err error) bool {
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func (c *Conn) observeLatency(rtt time.Duration) {
	if c.m == nil {
		return
	}
	c.m.HeartbeatLatency.Set(float64(rtt.Milliseconds()))
	c.m.HeartbeatRTT.Observe(rtt.Seconds())
}

func (c *Conn) handshakeTimeout() time.Duration {
	if c.opts.HandshakeTimeout <= 0 {
		return defaultHandshakeTimeout
	}
	return c.opts.HandshakeTimeout
}

func (c *Conn) pollInterval() time.Duration {
	if c.opts.PollInterval <= 0 {
		return defaultPollInterval
	}
	return c.opts.PollInterval
}

func (c *Conn) heartbeatTick() time.Duration {
	if c.opts.HeartbeatTick <= 0 {
		return defaultHeartbeatTick
	}
	return c.opts.HeartbeatTick
}

// dialURL suffixes the endpoint with protocol version and encoding.
func (c *Conn) dialURL() string {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return c.opts.URL
	}
	q := u.Query()
	q.Set("v", "6")
	q.Set("encoding", "json")
	u.RawQuery = q.Encode()
	return u.String()
}
