package wire

// Error codes the engine classifies during the handshake.
// Codes outside this set are treated as transient.
const (
	// CodeAuthFailed rejects the presented token or device signature.
	CodeAuthFailed = "auth_failed"

	// CodeProtocolMismatch rejects the offered protocol version range.
	CodeProtocolMismatch = "protocol_mismatch"

	// CodeUnsupported rejects a client the gateway refuses to serve.
	// Classified the same as a protocol mismatch.
	CodeUnsupported = "unsupported"
)

// WebSocket close signaling for device-identity mismatch. The gateway may
// abort the socket instead of answering the connect request when the
// presented device identity conflicts with its records.
const (
	// StatusDeviceAuthMismatch is the close status code for the mismatch.
	StatusDeviceAuthMismatch = 4008

	// ReasonDeviceAuthMismatch is the close reason string for the mismatch.
	ReasonDeviceAuthMismatch = "device-auth-mismatch"
)

// IsFatalCode reports whether a handshake rejection code must not be retried.
// auth_failed is fatal only when no device-token fallback remains; that
// decision belongs to the handshake coordinator, so it is not covered here.
func IsFatalCode(code string) bool {
	return code == CodeProtocolMismatch || code == CodeUnsupported
}
