package gateway

import (
	"github.com/castle-chat/clawlink/pkg/connection"
	"github.com/castle-chat/clawlink/pkg/wire"
)

// SignalKind classifies engine signals delivered to subscribers.
type SignalKind uint8

const (
	// SignalStateChange reports a connection state transition.
	SignalStateChange SignalKind = iota

	// SignalGatewayEvent delivers a server-pushed event frame.
	SignalGatewayEvent

	// SignalConnected reports a completed handshake with server details.
	SignalConnected

	// SignalPairingRequired asks for out-of-band device approval.
	SignalPairingRequired

	// SignalPairingApproved reports that the device token was minted.
	SignalPairingApproved

	// SignalAuthError reports a fatal authentication failure.
	SignalAuthError
)

// String returns the signal kind name.
func (k SignalKind) String() string {
	switch k {
	case SignalStateChange:
		return "state-change"
	case SignalGatewayEvent:
		return "gateway-event"
	case SignalConnected:
		return "connected"
	case SignalPairingRequired:
		return "pairing-required"
	case SignalPairingApproved:
		return "pairing-approved"
	case SignalAuthError:
		return "auth-error"
	default:
		return "unknown"
	}
}

// Signal is a single engine notification. The populated fields depend on
// Kind; unrelated fields are zero.
type Signal struct {
	Kind SignalKind

	// State and Reason accompany SignalStateChange.
	State  connection.State
	Reason string

	// Event accompanies SignalGatewayEvent.
	Event *wire.Event

	// Server accompanies SignalConnected.
	Server *wire.ConnectResult

	// Pairing accompanies SignalPairingRequired.
	Pairing *wire.PairingRequiredPayload

	// Err accompanies SignalAuthError.
	Err error
}
