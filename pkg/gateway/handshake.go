package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/castle-chat/clawlink/pkg/connection"
	"github.com/castle-chat/clawlink/pkg/identity"
	"github.com/castle-chat/clawlink/pkg/log"
	"github.com/castle-chat/clawlink/pkg/transport"
	"github.com/castle-chat/clawlink/pkg/version"
	"github.com/castle-chat/clawlink/pkg/wire"
)

// hsPhase tracks handshake progress on a single connection.
type hsPhase uint8

const (
	hsInactive hsPhase = iota

	// hsAwaitConnect: the initial connect request is in flight.
	hsAwaitConnect

	// hsAwaitChallenge: the signed retry is in flight. A rejection for
	// the pre-challenge request id is ignored in this phase.
	hsAwaitChallenge

	// hsPairing: waiting for out-of-band device approval. The handshake
	// timer is suspended.
	hsPairing
)

// handshakeState is the per-connection handshake bookkeeping.
// All fields are guarded by Client.mu.
type handshakeState struct {
	phase hsPhase

	// prePairing remembers where to resume after pairing approval.
	prePairing hsPhase

	// firstID is the id of the initial connect request; retryID the id
	// of the signed retry, when one was sent.
	firstID uint64
	retryID uint64

	// token is the bearer token presented on this attempt.
	token string

	// usedDeviceToken records whether token came from the identity store
	// rather than the account configuration.
	usedDeviceToken bool

	timer *time.Timer
}

func (h *handshakeState) active() bool {
	return h.phase != hsInactive
}

func (h *handshakeState) stopTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// beginHandshakeLocked sends the initial connect request on a fresh
// connection. The saved device token is preferred over the account token;
// the device block is never attached to the first attempt.
// Caller holds c.mu.
func (c *Client) beginHandshakeLocked(gen uint64, conn *transport.Conn) error {
	token := c.cfg.Token
	usedDeviceToken := false
	if devToken, err := c.identity.DeviceToken(); err == nil {
		token = devToken
		usedDeviceToken = true
	}

	id, err := c.sendConnectLocked(conn, token, nil)
	if err != nil {
		return err
	}

	c.hs = handshakeState{
		phase:           hsAwaitConnect,
		firstID:         id,
		token:           token,
		usedDeviceToken: usedDeviceToken,
	}
	c.armHandshakeTimerLocked(gen)
	return nil
}

// sendConnectLocked writes a connect request frame. Caller holds c.mu.
func (c *Client) sendConnectLocked(conn *transport.Conn, token string, device *wire.DeviceBlock) (uint64, error) {
	c.nextID++
	id := c.nextID

	params := wire.ConnectParams{
		MinProtocol: version.MinProtocol,
		MaxProtocol: version.MaxProtocol,
		Client:      c.clientInfo(),
		Auth:        wire.AuthBlock{Token: token},
		Device:      device,
		Role:        c.cfg.Role,
		Scopes:      c.cfg.Scopes,
		Caps:        c.cfg.Caps,
	}

	data, err := wire.Encode(wire.NewRequest(id, wire.MethodConnect, params))
	if err != nil {
		return 0, fmt.Errorf("encode connect: %w", err)
	}
	if err := conn.Send(c.runCtx, data); err != nil {
		return 0, fmt.Errorf("send connect: %w", err)
	}

	c.logMessage(conn, log.DirectionOut, &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		MessageID: id,
		Method:    wire.MethodConnect,
	})
	return id, nil
}

// armHandshakeTimerLocked (re)arms the handshake deadline for gen.
// Caller holds c.mu.
func (c *Client) armHandshakeTimerLocked(gen uint64) {
	c.hs.stopTimer()
	c.hs.timer = time.AfterFunc(c.cfg.HandshakeTimeout, func() {
		c.handshakeTimedOut(gen)
	})
}

// handshakeTimedOut fires when the connect round trip exceeds its deadline.
func (c *Client) handshakeTimedOut(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.started || !c.hs.active() || c.hs.phase == hsPairing {
		c.mu.Unlock()
		return
	}
	conn := c.teardownConnLocked()
	c.setStateLocked(connection.StateDisconnected, "handshake timeout")
	c.mu.Unlock()

	if conn != nil {
		go conn.Close()
	}
	c.scheduleRetry()
}

// teardownConnLocked detaches the current connection and invalidates its
// generation so late callbacks from its read loop are recognized as stale.
// Caller holds c.mu; the caller closes the returned connection.
func (c *Client) teardownConnLocked() *transport.Conn {
	conn := c.conn
	c.conn = nil
	c.gen++
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
	c.server = nil
	c.hs.stopTimer()
	c.hs = handshakeState{}
	c.rejectPendingLocked(ErrConnectionClosed)
	return conn
}

// handshakeResponseLocked routes a response received while handshaking.
// Caller holds c.mu.
func (c *Client) handshakeResponseLocked(gen uint64, conn *transport.Conn, resp *wire.Response) {
	switch c.hs.phase {
	case hsAwaitConnect:
		if resp.ID != c.hs.firstID {
			return
		}
	case hsAwaitChallenge:
		// Once the signed retry is in flight, a rejection for the
		// pre-challenge request id must not fail the handshake.
		if resp.ID == c.hs.firstID {
			return
		}
		if resp.ID != c.hs.retryID {
			return
		}
	default:
		return
	}

	if resp.OK {
		c.finishHandshakeLocked(gen, conn, resp)
		return
	}
	c.handshakeRejectedLocked(gen, conn, resp.Error)
}

// finishHandshakeLocked completes a successful handshake.
// Caller holds c.mu.
func (c *Client) finishHandshakeLocked(gen uint64, conn *transport.Conn, resp *wire.Response) {
	var result wire.ConnectResult
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		c.logError(conn, log.LayerWire, err, "parse connect result")
		c.handshakeFailedLocked(fmt.Sprintf("malformed connect result: %v", err))
		return
	}
	if !version.Supports(result.Protocol) {
		c.fatalHandshakeLocked(conn, wire.CodeProtocolMismatch,
			fmt.Sprintf("gateway selected unsupported protocol %d", result.Protocol), nil)
		return
	}

	c.hs.stopTimer()
	c.hs = handshakeState{}
	c.server = &result
	c.scheduler.Reset()
	c.setStateLocked(connection.StateConnected, "")

	c.keepAlive = transport.NewKeepAlive(c.cfg.KeepAlive, conn, func() {
		c.connectionLost(gen, fmt.Errorf("keep-alive timeout"))
	})
	c.keepAlive.Start(c.runCtx)

	c.dispatcher.Publish(Signal{Kind: SignalConnected, Server: &result})
}

// handshakeRejectedLocked classifies a connect rejection.
// Caller holds c.mu.
func (c *Client) handshakeRejectedLocked(gen uint64, conn *transport.Conn, werr *wire.Error) {
	code := ""
	if werr != nil {
		code = werr.Code
	}

	switch {
	case code == wire.CodeAuthFailed:
		c.authFailedLocked(conn, werr)

	case wire.IsFatalCode(code):
		msg := "gateway rejected the connection"
		if werr != nil {
			msg = werr.Message
		}
		c.fatalHandshakeLocked(conn, code, msg, werr)

	default:
		// Transient rejection; back off and retry.
		reason := "connect rejected"
		if werr != nil {
			reason = werr.Error()
		}
		c.handshakeFailedLocked(reason)
	}
}

// authFailedLocked applies the auth_failed classification: a saved device
// token is cleared and retried immediately with the account token; without
// that fallback the failure is fatal.
// Caller holds c.mu.
func (c *Client) authFailedLocked(conn *transport.Conn, werr *wire.Error) {
	if c.hs.usedDeviceToken {
		// The saved device token was revoked or rotated away. Fall back
		// to the account token on a fresh attempt, with backoff reset:
		// this is a recovery path, not a failure cycle.
		if err := c.identity.ClearDeviceToken(); err != nil {
			c.logError(conn, log.LayerEngine, err, "clear device token")
		}
		c.scheduler.Reset()
		dead := c.teardownConnLocked()
		gen := c.beginAttemptLocked()
		if dead != nil {
			go dead.Close()
		}
		go c.connect(gen)
		return
	}

	msg := "authentication failed"
	if werr != nil && werr.Message != "" {
		msg = werr.Message
	}
	c.fatalHandshakeLocked(conn, wire.CodeAuthFailed, msg, werr)
}

// fatalHandshakeLocked moves the engine to the error state. The reconnect
// scheduler is deliberately bypassed; only Stop/Start leaves this state.
// Caller holds c.mu.
func (c *Client) fatalHandshakeLocked(conn *transport.Conn, code, msg string, werr *wire.Error) {
	dead := c.teardownConnLocked()
	c.setStateLocked(connection.StateError, fmt.Sprintf("%s: %s", code, msg))
	if dead != nil {
		go dead.Close()
	}

	if code == wire.CodeAuthFailed {
		err := error(newRPCError(werr))
		if werr == nil {
			err = &RPCError{Code: wire.CodeAuthFailed, Message: msg}
		}
		c.dispatcher.Publish(Signal{Kind: SignalAuthError, Err: err})
	}
}

// handshakeFailedLocked handles a transient handshake failure: tear down
// and hand the cycle to the reconnect scheduler.
// Caller holds c.mu.
func (c *Client) handshakeFailedLocked(reason string) {
	dead := c.teardownConnLocked()
	c.setStateLocked(connection.StateDisconnected, reason)
	if dead != nil {
		go dead.Close()
	}
	c.scheduleRetry()
}

// handshakeEventLocked routes handshake-phase events.
// Caller holds c.mu.
func (c *Client) handshakeEventLocked(gen uint64, conn *transport.Conn, ev *wire.Event) {
	switch ev.Event {
	case wire.EventConnectChallenge:
		c.challengeLocked(gen, conn, ev)

	case wire.EventPairingRequired:
		var payload wire.PairingRequiredPayload
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				c.logError(conn, log.LayerWire, err, "parse pairing.required")
			}
		}
		c.hs.prePairing = c.hs.phase
		c.hs.phase = hsPairing
		// The deadline must not run while a human decides.
		c.hs.stopTimer()
		c.setStateLocked(connection.StatePairing, "")
		c.dispatcher.Publish(Signal{Kind: SignalPairingRequired, Pairing: &payload})

	case wire.EventPairingApproved:
		var payload wire.PairingApprovedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.logError(conn, log.LayerWire, err, "parse pairing.approved")
			return
		}
		if payload.DeviceToken != "" {
			if err := c.identity.SaveDeviceToken(payload.DeviceToken); err != nil {
				c.logError(conn, log.LayerEngine, err, "save device token")
			}
		}
		if c.hs.phase == hsPairing {
			c.hs.phase = c.hs.prePairing
			if c.hs.phase == hsInactive {
				c.hs.phase = hsAwaitConnect
			}
			c.armHandshakeTimerLocked(gen)
			c.setStateLocked(connection.StateConnecting, "")
		}
		c.dispatcher.Publish(Signal{Kind: SignalPairingApproved})
	}
}

// challengeLocked answers a connect.challenge by signing the nonce and
// resending connect with the device block attached.
// Caller holds c.mu.
func (c *Client) challengeLocked(gen uint64, conn *transport.Conn, ev *wire.Event) {
	if c.deviceAuthDisabled {
		// Device-identity auth is disabled for this process; the
		// challenge cannot be satisfied. Classify as an auth failure.
		c.authFailedLocked(conn, &wire.Error{
			Code:    wire.CodeAuthFailed,
			Message: "device-identity auth disabled",
		})
		return
	}

	var payload wire.ChallengePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.Nonce == "" {
		c.logError(conn, log.LayerWire, fmt.Errorf("malformed challenge: %v", err), "parse connect.challenge")
		c.handshakeFailedLocked("malformed connect.challenge")
		return
	}

	id, err := c.identity.GetOrCreate()
	if err != nil {
		c.logError(conn, log.LayerEngine, err, "load device identity")
		c.handshakeFailedLocked("device identity unavailable")
		return
	}

	sig, err := identity.SignChallenge(id, payload.Nonce, identity.AuthParams{
		ClientID:   c.cfg.ClientID,
		ClientMode: c.cfg.ClientMode,
		Role:       c.cfg.Role,
		Scopes:     c.cfg.Scopes,
		Token:      c.hs.token,
	})
	if err != nil {
		c.logError(conn, log.LayerEngine, err, "sign challenge")
		c.handshakeFailedLocked("challenge signing failed")
		return
	}

	device := &wire.DeviceBlock{
		ID:        sig.DeviceID,
		PublicKey: sig.PublicKey,
		Signature: sig.Signature,
		Nonce:     sig.Nonce,
		SignedAt:  sig.SignedAt,
	}

	retryID, err := c.sendConnectLocked(conn, c.hs.token, device)
	if err != nil {
		c.handshakeFailedLocked(fmt.Sprintf("signed retry failed: %v", err))
		return
	}
	c.hs.retryID = retryID
	c.hs.phase = hsAwaitChallenge
}
