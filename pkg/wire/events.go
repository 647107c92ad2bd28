package wire

// Handshake-phase event names the engine must recognize.
const (
	// EventConnectChallenge asks the client to prove its device identity
	// by signing the carried nonce and retrying connect.
	EventConnectChallenge = "connect.challenge"

	// EventPairingRequired indicates the device is unknown to the gateway
	// and a human must approve it out-of-band.
	EventPairingRequired = "device.pairing.required"

	// EventPairingApproved delivers the device token minted on approval.
	EventPairingApproved = "device.pairing.approved"
)

// ChallengePayload is the payload of a connect.challenge event.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
}

// PairingRequiredPayload is the payload of a device.pairing.required event.
type PairingRequiredPayload struct {
	DeviceID string `json:"deviceId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// PairingApprovedPayload is the payload of a device.pairing.approved event.
type PairingApprovedPayload struct {
	DeviceToken string `json:"deviceToken"`
}
