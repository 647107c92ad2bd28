package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/castle-chat/clawlink/pkg/connection"
	"github.com/castle-chat/clawlink/pkg/identity"
	"github.com/castle-chat/clawlink/pkg/log"
	"github.com/castle-chat/clawlink/pkg/transport"
	"github.com/castle-chat/clawlink/pkg/version"
	"github.com/castle-chat/clawlink/pkg/wire"
)

// Default engine parameters.
const (
	// DefaultHandshakeTimeout bounds the connect round trip. The timer is
	// suspended while the handshake waits for pairing approval.
	DefaultHandshakeTimeout = 15 * time.Second

	// DefaultRequestTimeout is the per-request deadline applied when the
	// caller's context carries none.
	DefaultRequestTimeout = 30 * time.Second
)

// Config configures a gateway client.
type Config struct {
	// URL is the gateway endpoint (ws:// or wss://).
	URL string

	// Token is the account bearer token used until the device is paired.
	Token string

	// ClientID identifies this client to the gateway.
	ClientID string

	// ClientMode distinguishes client flavors sharing an id (default "node").
	ClientMode string

	// DisplayName is the human-readable client name.
	DisplayName string

	// Platform reported to the gateway (default runtime.GOOS).
	Platform string

	// Role requested for the session (default "operator").
	Role string

	// Scopes requested for the session.
	Scopes []string

	// Caps advertises client capabilities.
	Caps []string

	// Identity manages the device keypair and token. Required.
	Identity *identity.Manager

	// HandshakeTimeout bounds the connect handshake.
	HandshakeTimeout time.Duration

	// RequestTimeout is the default per-request deadline.
	RequestTimeout time.Duration

	// ReconnectInitial and ReconnectMax bound the backoff window.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// MaxMessageSize is the inbound frame ceiling passed to the transport.
	MaxMessageSize int64

	// KeepAlive configures connection pings.
	KeepAlive transport.KeepAliveConfig

	// Logger receives protocol events. Nil disables capture.
	Logger log.Logger
}

func (c *Config) applyDefaults() {
	if c.ClientMode == "" {
		c.ClientMode = "node"
	}
	if c.Platform == "" {
		c.Platform = runtime.GOOS
	}
	if c.Role == "" {
		c.Role = "operator"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.KeepAlive == (transport.KeepAliveConfig{}) {
		c.KeepAlive = transport.DefaultKeepAliveConfig()
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
}

// rpcResult settles a pending request exactly once.
type rpcResult struct {
	resp *wire.Response
	err  error
}

// Client is the gateway connection engine.
type Client struct {
	cfg        Config
	identity   *identity.Manager
	logger     log.Logger
	dispatcher *Dispatcher
	scheduler  *connection.Scheduler

	mu      sync.Mutex
	started bool
	state   connection.State
	conn    *transport.Conn
	// gen increments per connection attempt so callbacks from torn-down
	// connections are recognized as stale.
	gen       uint64
	nextID    uint64
	pending   map[uint64]chan rpcResult
	keepAlive *transport.KeepAlive
	server    *wire.ConnectResult

	// Handshake state for the current connection attempt.
	hs handshakeState

	// deviceAuthDisabled is set for the process lifetime after the
	// gateway aborts the socket with a device-identity mismatch.
	deviceAuthDisabled bool

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New creates a gateway client. The returned client is idle until Start.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("gateway URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity manager is required")
	}
	cfg.applyDefaults()

	c := &Client{
		cfg:        cfg,
		identity:   cfg.Identity,
		logger:     cfg.Logger,
		dispatcher: NewDispatcher(),
		state:      connection.StateDisconnected,
		pending:    make(map[uint64]chan rpcResult),
	}
	c.scheduler = connection.NewScheduler(
		connection.NewBackoffWithConfig(connection.BackoffConfig{
			Initial: cfg.ReconnectInitial,
			Max:     cfg.ReconnectMax,
		}),
		c.onReconnectDue,
	)
	return c, nil
}

// Start begins connecting. It returns immediately; progress is reported
// through Subscribe. Calling Start on a running client is a no-op.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	c.scheduler.Start()
	gen := c.beginAttemptLocked()
	c.mu.Unlock()

	go c.connect(gen)
}

// Stop tears the engine down: the connection is closed, all pending
// requests are rejected with ErrConnectionClosed, and any scheduled
// reconnect is cancelled. The client can be restarted with Start.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.scheduler.Stop()
	if c.runCancel != nil {
		c.runCancel()
	}
	c.hs.stopTimer()
	c.hs = handshakeState{}
	conn := c.conn
	c.conn = nil
	c.gen++
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
	c.server = nil
	c.rejectPendingLocked(ErrConnectionClosed)
	c.setStateLocked(connection.StateDisconnected, "stopped")
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ServerInfo returns the connect result of the current session, or nil
// when not connected.
func (c *Client) ServerInfo() *wire.ConnectResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

// Subscribe registers a signal consumer. See Dispatcher.Subscribe.
func (c *Client) Subscribe(buffer int, kinds ...SignalKind) (<-chan Signal, func()) {
	return c.dispatcher.Subscribe(buffer, kinds...)
}

// Request performs an RPC over the current session. It fails synchronously
// with ErrNotConnected when no authenticated session exists. The response
// payload is returned raw; gateway rejections surface as *RPCError.
func (c *Client) Request(ctx context.Context, method string, params any) ([]byte, error) {
	c.mu.Lock()
	if c.state != connection.StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	c.nextID++
	id := c.nextID
	ch := make(chan rpcResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := wire.Encode(wire.NewRequest(id, method, params))
	if err != nil {
		c.discardPending(id)
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	c.logMessage(conn, log.DirectionOut, &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: id,
		Method:    method,
	})

	if err := conn.Send(ctx, data); err != nil {
		c.discardPending(id)
		return nil, &SendError{Method: method, Err: err}
	}

	select {
	case res := <-ch:
		return c.finishRequest(conn, id, start, res)
	case <-ctx.Done():
		// Settlement may already be in flight; whoever removes the
		// pending entry wins.
		if c.discardPending(id) {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrRequestTimeout
			}
			return nil, ctx.Err()
		}
		res := <-ch
		return c.finishRequest(conn, id, start, res)
	}
}

func (c *Client) finishRequest(conn *transport.Conn, id uint64, start time.Time, res rpcResult) ([]byte, error) {
	if res.err != nil {
		return nil, res.err
	}
	resp := res.resp

	rt := time.Since(start)
	ok := resp.OK
	ev := &log.MessageEvent{
		Type:      log.MessageTypeResponse,
		MessageID: id,
		OK:        &ok,
		RoundTrip: &rt,
	}
	if resp.Error != nil {
		ev.ErrorCode = resp.Error.Code
	}
	c.logMessage(conn, log.DirectionIn, ev)

	if !resp.OK {
		return nil, newRPCError(resp.Error)
	}
	return resp.Payload, nil
}

// discardPending removes a pending entry, reporting whether it was still
// present.
func (c *Client) discardPending(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// settleResponse delivers a response to its waiting request. Unknown or
// already-settled ids are silently discarded.
func (c *Client) settleResponse(resp *wire.Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		ch <- rpcResult{resp: resp}
	}
}

// rejectPendingLocked settles every pending request with err.
// Caller holds c.mu.
func (c *Client) rejectPendingLocked(err error) {
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- rpcResult{err: err}
	}
}

// beginAttemptLocked advances the connection generation and moves to the
// connecting state. Caller holds c.mu; returns the new generation.
func (c *Client) beginAttemptLocked() uint64 {
	c.gen++
	c.setStateLocked(connection.StateConnecting, "")
	return c.gen
}

// connect dials the gateway and launches the handshake for generation gen.
func (c *Client) connect(gen uint64) {
	c.mu.Lock()
	if !c.started || gen != c.gen {
		c.mu.Unlock()
		return
	}
	ctx := c.runCtx
	c.mu.Unlock()

	conn, err := transport.Dial(ctx, c.cfg.URL, transport.Config{
		MaxMessageSize: c.cfg.MaxMessageSize,
		DialTimeout:    c.cfg.HandshakeTimeout,
		Logger:         c.logger,
	})
	if err != nil {
		c.connectionFailed(gen, fmt.Errorf("dial: %w", err))
		return
	}

	c.mu.Lock()
	if !c.started || gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	err = c.beginHandshakeLocked(gen, conn)
	c.mu.Unlock()

	if err != nil {
		conn.Close()
		c.connectionFailed(gen, err)
		return
	}

	go c.readLoop(ctx, gen, conn)
}

// readLoop receives frames until the connection dies.
func (c *Client) readLoop(ctx context.Context, gen uint64, conn *transport.Conn) {
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrMessageTooLarge) {
				// Frame dropped before parsing; session continues.
				continue
			}
			c.connectionLost(gen, err)
			return
		}

		frame, derr := wire.Decode(data)
		if derr != nil {
			c.logError(conn, log.LayerWire, derr, "decode frame")
			continue
		}

		switch f := frame.(type) {
		case *wire.Response:
			c.handleResponse(gen, conn, f)
		case *wire.Event:
			c.handleEvent(gen, conn, f)
		case *wire.Request:
			// The gateway never sends requests; ignore.
		}
	}
}

// handleResponse routes a response to the handshake or the RPC table.
func (c *Client) handleResponse(gen uint64, conn *transport.Conn, resp *wire.Response) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.hs.active() {
		c.handshakeResponseLocked(gen, conn, resp)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.settleResponse(resp)
}

// handleEvent routes an event to the handshake or the dispatcher.
func (c *Client) handleEvent(gen uint64, conn *transport.Conn, ev *wire.Event) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.hs.active() {
		switch ev.Event {
		case wire.EventConnectChallenge, wire.EventPairingRequired, wire.EventPairingApproved:
			c.handshakeEventLocked(gen, conn, ev)
			c.mu.Unlock()
			return
		}
	}
	c.mu.Unlock()

	var seq *uint64
	if ev.Seq != 0 {
		s := ev.Seq
		seq = &s
	}
	c.logMessage(conn, log.DirectionIn, &log.MessageEvent{
		Type:  log.MessageTypeEvent,
		Event: ev.Event,
		Seq:   seq,
	})
	c.dispatcher.Publish(Signal{Kind: SignalGatewayEvent, Event: ev})
}

// connectionLost handles a dead connection: pending requests are rejected
// and, depending on the phase, the handshake failure path or the reconnect
// scheduler takes over.
func (c *Client) connectionLost(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.started {
		c.mu.Unlock()
		return
	}

	conn := c.conn
	c.conn = nil
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
	c.server = nil
	c.rejectPendingLocked(ErrConnectionClosed)

	handshaking := c.hs.active()
	c.hs.stopTimer()
	c.hs = handshakeState{}

	// Abrupt close with the device-mismatch signature during the
	// handshake disables device-identity auth for the process lifetime
	// and retries immediately.
	if handshaking && !c.deviceAuthDisabled {
		if status, reason, ok := transport.CloseStatus(err); ok {
			if status == wire.StatusDeviceAuthMismatch || reason == wire.ReasonDeviceAuthMismatch {
				c.deviceAuthDisabled = true
				gen := c.beginAttemptLocked()
				c.mu.Unlock()
				if conn != nil {
					conn.Close()
				}
				go c.connect(gen)
				return
			}
		}
	}

	c.setStateLocked(connection.StateDisconnected, err.Error())
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.scheduleRetry()
}

// connectionFailed handles a failed connection attempt (dial or handshake
// send error) by scheduling a retry.
func (c *Client) connectionFailed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.started {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.hs.stopTimer()
	c.hs = handshakeState{}
	c.setStateLocked(connection.StateDisconnected, err.Error())
	c.mu.Unlock()

	c.scheduleRetry()
}

// scheduleRetry arms the reconnect timer.
func (c *Client) scheduleRetry() {
	if delay, ok := c.scheduler.Schedule(); ok {
		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			Direction: log.DirectionOut,
			Layer:     log.LayerEngine,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				NewState: connection.StateConnecting.String(),
				Reason:   fmt.Sprintf("reconnect in %s", delay),
			},
		})
	}
}

// onReconnectDue fires when the backoff timer expires.
func (c *Client) onReconnectDue() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	gen := c.beginAttemptLocked()
	c.mu.Unlock()

	c.connect(gen)
}

// setStateLocked transitions the connection state and publishes the change.
// Publishing happens under the lock so subscribers observe transitions in
// the order they occur; Dispatcher.Publish never blocks, so holding c.mu
// here is safe.
// Caller holds c.mu.
func (c *Client) setStateLocked(next connection.State, reason string) {
	old := c.state
	if old == next {
		return
	}
	c.state = next
	c.publishStateChange(old, next, reason)
}

func (c *Client) publishStateChange(old, next connection.State, reason string) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
	c.dispatcher.Publish(Signal{Kind: SignalStateChange, State: next, Reason: reason})
}

func (c *Client) logMessage(conn *transport.Conn, dir log.Direction, msg *log.MessageEvent) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ID(),
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		GatewayURL:   conn.URL(),
		Message:      msg,
	})
}

func (c *Client) logError(conn *transport.Conn, layer log.Layer, err error, context string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ID(),
		Direction:    log.DirectionIn,
		Layer:        layer,
		Category:     log.CategoryError,
		GatewayURL:   conn.URL(),
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}

// clientInfo builds the client identification block.
func (c *Client) clientInfo() wire.ClientInfo {
	return wire.ClientInfo{
		ID:          c.cfg.ClientID,
		DisplayName: c.cfg.DisplayName,
		Version:     version.Version,
		Platform:    c.cfg.Platform,
		Mode:        c.cfg.ClientMode,
	}
}
