// Package connection provides the session state enum, exponential backoff
// calculation, and the reconnect scheduler used by the gateway engine.
//
// The scheduler owns a single timer. It never runs while a transport is
// live: the engine schedules a retry only after the previous connection has
// been fully torn down, and one successful handshake resets the backoff to
// its initial delay.
package connection
