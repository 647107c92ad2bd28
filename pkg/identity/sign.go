package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// authPayloadVersion tags the canonical payload format.
const authPayloadVersion = "v1"

// AuthParams carries the connection attributes bound into a device
// signature. Token is the bearer token presented alongside the signature;
// Nonce is empty for the initial attempt and set to the gateway challenge
// on retry.
type AuthParams struct {
	ClientID   string
	ClientMode string
	Role       string
	Scopes     []string
	Token      string
	Nonce      string
	SignedAt   int64 // unix milliseconds; zero means now
}

// DeviceSignature is the signed device-auth material sent during connect.
type DeviceSignature struct {
	DeviceID  string
	PublicKey string
	Signature string
	Nonce     string
	SignedAt  int64
}

// CanonicalAuthPayload builds the exact byte string the device signs. Both
// sides must produce it identically; the field order and pipe delimiter are
// part of the protocol.
func CanonicalAuthPayload(deviceID string, p AuthParams) string {
	return strings.Join([]string{
		authPayloadVersion,
		deviceID,
		p.ClientID,
		p.ClientMode,
		p.Role,
		strings.Join(p.Scopes, ","),
		fmt.Sprintf("%d", p.SignedAt),
		p.Token,
		p.Nonce,
	}, "|")
}

// SignDeviceAuth signs the canonical auth payload with the identity's
// private key. A zero SignedAt is replaced with the current time.
func SignDeviceAuth(id *Identity, p AuthParams) (*DeviceSignature, error) {
	pub, priv, err := id.Keys()
	if err != nil {
		return nil, err
	}
	if p.SignedAt == 0 {
		p.SignedAt = time.Now().UnixMilli()
	}

	payload := CanonicalAuthPayload(id.DeviceID, p)
	sig := ed25519.Sign(priv, []byte(payload))

	return &DeviceSignature{
		DeviceID:  id.DeviceID,
		PublicKey: base64.RawURLEncoding.EncodeToString(pub),
		Signature: base64.RawURLEncoding.EncodeToString(sig),
		Nonce:     p.Nonce,
		SignedAt:  p.SignedAt,
	}, nil
}

// SignChallenge signs the auth payload bound to a gateway-issued nonce.
func SignChallenge(id *Identity, nonce string, p AuthParams) (*DeviceSignature, error) {
	p.Nonce = nonce
	p.SignedAt = 0
	return SignDeviceAuth(id, p)
}

// VerifyDeviceAuth checks a device signature against the canonical payload
// rebuilt from params. The gateway performs this check; it is exported here
// so tests and tooling can validate signatures end to end.
func VerifyDeviceAuth(sig *DeviceSignature, p AuthParams) error {
	pub, err := base64.RawURLEncoding.DecodeString(sig.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key", ErrInvalidKey)
	}
	if derived := DeriveDeviceID(pub); derived != sig.DeviceID {
		return fmt.Errorf("device id %s does not match public key", sig.DeviceID)
	}

	raw, err := base64.RawURLEncoding.DecodeString(sig.Signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}

	p.Nonce = sig.Nonce
	p.SignedAt = sig.SignedAt
	payload := CanonicalAuthPayload(sig.DeviceID, p)
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(payload), raw) {
		return fmt.Errorf("signature verification failed for device %s", sig.DeviceID)
	}
	return nil
}
