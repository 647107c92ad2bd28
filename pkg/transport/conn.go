package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/castle-chat/clawlink/pkg/log"
)

// Default transport parameters.
const (
	// DefaultMaxMessageSize is the maximum inbound frame size (1MB).
	DefaultMaxMessageSize = 1 << 20

	// DefaultDialTimeout is the timeout for establishing a connection.
	DefaultDialTimeout = 15 * time.Second
)

// Transport errors.
var (
	// ErrConnectionClosed is returned by Send and Receive after the
	// connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMessageTooLarge is returned by Receive when an inbound frame
	// exceeds the configured size ceiling. The frame is discarded; the
	// connection remains usable.
	ErrMessageTooLarge = errors.New("message exceeds size limit")
)

// Config configures a transport connection.
type Config struct {
	// MaxMessageSize is the maximum inbound frame size in bytes
	// (default: DefaultMaxMessageSize).
	MaxMessageSize int64

	// DialTimeout bounds connection establishment when the dial context
	// has no deadline (default: DefaultDialTimeout).
	DialTimeout time.Duration

	// Logger receives protocol events. Nil disables capture.
	Logger log.Logger

	// DialOptions customizes the WebSocket upgrade request, including
	// extra HTTP headers.
	DialOptions *websocket.DialOptions
}

// Conn is a single WebSocket connection to a gateway.
// It is safe for concurrent use; writes are serialized internally.
type Conn struct {
	id  string
	url string
	ws  *websocket.Conn

	maxMessageSize int64
	logger         log.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeCh   chan struct{}
}

// Dial establishes a WebSocket connection to url.
func Dial(ctx context.Context, url string, cfg Config) (*Conn, error) {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	ws, resp, err := websocket.Dial(ctx, url, cfg.DialOptions)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	// Oversized frames are handled manually in Receive so they can be
	// dropped without closing the connection.
	ws.SetReadLimit(-1)

	return &Conn{
		id:             uuid.NewString(),
		url:            url,
		ws:             ws,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         cfg.Logger,
		closeCh:        make(chan struct{}),
	}, nil
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// URL returns the gateway endpoint this connection was dialed to.
func (c *Conn) URL() string {
	return c.url
}

// Receive reads the next inbound frame. Frames larger than the configured
// ceiling are fully drained and discarded, and ErrMessageTooLarge is
// returned; the caller should continue receiving.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	_, r, err := c.ws.Reader(ctx)
	if err != nil {
		return nil, c.receiveError(err)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, c.maxMessageSize+1))
	if err != nil {
		return nil, c.receiveError(err)
	}
	if n > c.maxMessageSize {
		// Drain the remainder so the connection stays in sync.
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, c.receiveError(err)
		}
		c.logFrame(log.DirectionIn, int(n), nil, true)
		return nil, ErrMessageTooLarge
	}

	data := buf.Bytes()
	c.logFrame(log.DirectionIn, len(data), data, false)
	return data, nil
}

// Send writes a text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	c.logFrame(log.DirectionOut, len(data), data, false)
	return nil
}

// Ping sends a WebSocket ping and waits for the pong. A concurrent Receive
// must be in flight for the pong to be processed.
func (c *Conn) Ping(ctx context.Context) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if err := c.ws.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	c.logControl(log.ControlMsgPing, nil, "")
	return nil
}

// Close closes the connection with a normal closure status.
// It is safe to call multiple times.
func (c *Conn) Close() error {
	return c.CloseWithStatus(websocket.StatusNormalClosure, "client closing")
}

// CloseWithStatus closes the connection with a specific status and reason.
func (c *Conn) CloseWithStatus(status websocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		code := int(status)
		c.logControl(log.ControlMsgClose, &code, reason)
		err = c.ws.Close(status, reason)
	})
	return err
}

// Closed reports whether Close has been called locally.
func (c *Conn) Closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// CloseStatus extracts the WebSocket close status and reason from a receive
// error. ok is false when the error does not carry a close frame.
func CloseStatus(err error) (status int, reason string, ok bool) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return int(ce.Code), ce.Reason, true
	}
	return 0, "", false
}

// receiveError maps read failures to ErrConnectionClosed where appropriate
// and logs close frames.
func (c *Conn) receiveError(err error) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if status, reason, ok := CloseStatus(err); ok {
		c.logControl(log.ControlMsgClose, &status, reason)
		// Keep the close error in the chain so CloseStatus works on the
		// returned error too.
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return fmt.Errorf("read failed: %w", err)
}

// logFrame captures a transport-layer frame event. Payload bytes are
// truncated beyond 1KB to bound log size.
func (c *Conn) logFrame(dir log.Direction, size int, data []byte, dropped bool) {
	const maxCapture = 1024

	truncated := false
	if len(data) > maxCapture {
		data = data[:maxCapture]
		truncated = true
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		GatewayURL:   c.url,
		Frame: &log.FrameEvent{
			Size:      size,
			Data:      data,
			Truncated: truncated,
			Dropped:   dropped,
		},
	})
}

func (c *Conn) logControl(typ log.ControlMsgType, status *int, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		GatewayURL:   c.url,
		ControlMsg: &log.ControlMsgEvent{
			Type:        typ,
			CloseStatus: status,
			CloseReason: reason,
		},
	})
}
