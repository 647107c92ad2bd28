// Package discovery finds gateways on the local network via mDNS.
//
// Gateways advertise the _openclaw-gw._tcp service with TXT records
// describing the WebSocket path and protocol window. Browse streams
// gateways as they appear; Find returns the first one.
//
// Discovery is a convenience for local setups. Clients with a configured
// gateway URL never need this package.
package discovery
