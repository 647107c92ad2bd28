package transport

import (
	"context"
	"sync"
	"time"
)

// Default keep-alive parameters.
const (
	// DefaultPingInterval is the interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPingTimeout is how long to wait for a pong.
	DefaultPingTimeout = 10 * time.Second
)

// KeepAliveConfig configures connection keep-alive.
type KeepAliveConfig struct {
	// Enabled controls whether keep-alive runs (default: true when the
	// zero value is normalized through DefaultKeepAliveConfig).
	Enabled bool

	// Interval between pings (default: DefaultPingInterval).
	Interval time.Duration

	// Timeout for each ping (default: DefaultPingTimeout).
	Timeout time.Duration
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Enabled:  true,
		Interval: DefaultPingInterval,
		Timeout:  DefaultPingTimeout,
	}
}

// KeepAlive periodically pings a connection and reports when the peer stops
// responding. The WebSocket layer matches pongs to pings; a ping that errors
// or times out means the connection is dead.
type KeepAlive struct {
	config    KeepAliveConfig
	conn      *Conn
	onTimeout func()

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewKeepAlive creates a keep-alive monitor for conn. onTimeout is invoked
// once when a ping fails.
func NewKeepAlive(config KeepAliveConfig, conn *Conn, onTimeout func()) *KeepAlive {
	if config.Interval <= 0 {
		config.Interval = DefaultPingInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultPingTimeout
	}
	return &KeepAlive{
		config:    config,
		conn:      conn,
		onTimeout: onTimeout,
	}
}

// Start begins the ping loop. No-op when disabled or already running.
func (k *KeepAlive) Start(ctx context.Context) {
	if !k.config.Enabled {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.running {
		return
	}
	k.running = true

	ctx, k.cancel = context.WithCancel(ctx)
	go k.loop(ctx)
}

// Stop terminates the ping loop.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		k.cancel()
		k.cancel = nil
	}
	k.running = false
}

func (k *KeepAlive) loop(ctx context.Context) {
	ticker := time.NewTicker(k.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, k.config.Timeout)
			err := k.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				k.Stop()
				if k.onTimeout != nil {
					k.onTimeout()
				}
				return
			}
		}
	}
}
