package wire

// MethodConnect is the handshake request method.
const MethodConnect = "connect"

// ConnectParams is the parameter block of the connect request.
//
// The first attempt carries only Auth; the Device block is attached only on
// the signed retry after a connect.challenge event.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        AuthBlock    `json:"auth"`
	Device      *DeviceBlock `json:"device,omitempty"`
	Role        string       `json:"role"`
	Scopes      []string     `json:"scopes,omitempty"`
	Caps        []string     `json:"caps,omitempty"`
}

// ClientInfo identifies the connecting client installation.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
}

// AuthBlock carries the shared account token or a saved device token.
type AuthBlock struct {
	Token string `json:"token"`
}

// DeviceBlock proves possession of the device private key in a
// challenge-response retry. SignedAt is epoch milliseconds.
type DeviceBlock struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
	SignedAt  int64  `json:"signedAt"`
}

// ConnectResult is the payload of a successful connect response.
type ConnectResult struct {
	Protocol int               `json:"protocol"`
	Server   ServerDescription `json:"server"`
	Features map[string]bool   `json:"features,omitempty"`
}

// ServerDescription identifies the gateway build that accepted the session.
type ServerDescription struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
