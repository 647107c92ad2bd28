package discovery

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceTypeGateway is the service type gateways advertise.
	ServiceTypeGateway = "_openclaw-gw._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default gateway WebSocket port.
	DefaultPort = 8089

	// DefaultPath is the WebSocket endpoint path when the TXT record
	// omits one.
	DefaultPath = "/ws"
)

// TXT record keys.
const (
	// TXTKeyPath is the WebSocket endpoint path.
	TXTKeyPath = "path"

	// TXTKeyName is the human-readable gateway name.
	TXTKeyName = "name"

	// TXTKeyMinProtocol is the lowest protocol version the gateway speaks.
	TXTKeyMinProtocol = "minp"

	// TXTKeyMaxProtocol is the highest protocol version the gateway speaks.
	TXTKeyMaxProtocol = "maxp"

	// TXTKeyTLS is "1" when the gateway expects wss://.
	TXTKeyTLS = "tls"
)

// BrowseTimeout is the default timeout for mDNS browsing.
const BrowseTimeout = 10 * time.Second

// Discovery errors.
var (
	ErrInvalidTXTRecord = errors.New("invalid TXT record format")
	ErrNotFound         = errors.New("gateway not found")
)

// GatewayService is a gateway found via mDNS.
type GatewayService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the advertised hostname (e.g. "gw-1.local.").
	Host string

	// Port is the service port.
	Port uint16

	// Addresses contains resolved IP addresses.
	Addresses []string

	// Path is the WebSocket endpoint path (from TXT "path").
	Path string

	// Name is the human-readable gateway name (from TXT "name").
	Name string

	// MinProtocol and MaxProtocol describe the gateway's protocol window
	// (from TXT "minp"/"maxp"; zero when absent).
	MinProtocol int
	MaxProtocol int

	// TLS indicates the gateway expects wss:// (from TXT "tls").
	TLS bool
}

// URL builds the WebSocket URL for connecting to this gateway. It prefers
// the advertised hostname; when empty, the first resolved address is used.
func (g *GatewayService) URL() string {
	scheme := "ws"
	if g.TLS {
		scheme = "wss"
	}

	host := strings.TrimSuffix(g.Host, ".")
	if host == "" && len(g.Addresses) > 0 {
		host = g.Addresses[0]
		if strings.Contains(host, ":") {
			// Bracket IPv6 literals
			host = "[" + host + "]"
		}
	}

	path := g.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	port := g.Port
	if port == 0 {
		port = DefaultPort
	}

	return fmt.Sprintf("%s://%s:%d%s", scheme, host, port, path)
}
