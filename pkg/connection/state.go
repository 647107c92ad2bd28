package connection

// State represents the gateway session state.
// Exactly one authoritative instance exists per engine.
type State uint8

const (
	// StateDisconnected indicates no active connection and no attempt in
	// progress.
	StateDisconnected State = iota

	// StateConnecting indicates a dial, handshake, or scheduled retry is in
	// progress. Transient: resolves without operator action.
	StateConnecting

	// StateConnected indicates an authenticated session.
	StateConnected

	// StatePairing indicates the gateway is waiting for out-of-band human
	// approval of this device.
	StatePairing

	// StateError indicates a fatal handshake failure. Requires
	// reconfiguration, not patience: the engine will not retry on its own.
	StateError
)

// String returns the state name as exposed to subscribers.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePairing:
		return "pairing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
