// Package gateway implements the connection engine: a long-lived
// authenticated WebSocket session to a remote gateway with automatic
// reconnection.
//
// The Client owns the full connection lifecycle: dialing, the connect
// handshake (including Ed25519 device-identity challenge-response and
// first-contact pairing), request/response correlation, event
// demultiplexing, keep-alive, and bounded exponential backoff reconnect.
//
// Consumers observe the engine through Subscribe (state changes, gateway
// events, pairing prompts) and call Request for RPCs. Start and Stop may be
// called repeatedly; Stop rejects all in-flight requests and leaves the
// engine restartable.
package gateway
