// Package version declares the protocol versions this client speaks and the
// library release version.
package version

import "fmt"

// Protocol version window offered during the connect handshake. The gateway
// selects a version inside [MinProtocol, MaxProtocol] or rejects the
// connection with a protocol_mismatch error.
const (
	// MinProtocol is the lowest protocol version this client accepts.
	MinProtocol = 1

	// MaxProtocol is the highest protocol version this client accepts.
	MaxProtocol = 1
)

// Version is the library release version. Overridable at build time via
// -ldflags "-X github.com/castle-chat/clawlink/pkg/version.Version=...".
var Version = "0.3.0"

// Supports reports whether a gateway-selected protocol version falls inside
// the client's window.
func Supports(protocol int) bool {
	return protocol >= MinProtocol && protocol <= MaxProtocol
}

// UserAgent returns the client identification string sent to the gateway.
func UserAgent() string {
	return fmt.Sprintf("clawlink/%s", Version)
}
