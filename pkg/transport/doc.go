// Package transport provides the WebSocket connection layer for the gateway
// client.
//
// A Conn wraps a single dialed WebSocket connection. It enforces the maximum
// inbound frame size by discarding oversized frames without terminating the
// connection, serializes writes, and maps close frames to status codes and
// reasons for the layers above.
//
// The transport is deliberately dumb: it moves byte frames. Frame decoding,
// request correlation, and handshake logic live in higher layers.
package transport
