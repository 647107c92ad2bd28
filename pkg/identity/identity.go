package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Identity errors.
var (
	// ErrNoDeviceToken indicates no device token has been saved.
	ErrNoDeviceToken = errors.New("no device token")

	// ErrInvalidKey indicates the stored key material cannot be used.
	ErrInvalidKey = errors.New("invalid key material")
)

// spkiPrefix is the fixed DER header of an Ed25519 SubjectPublicKeyInfo
// encoding. Legacy identity files stored the public key in this form; the
// raw key is recovered by stripping the header.
var spkiPrefix = []byte{
	0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x70, 0x03, 0x21, 0x00,
}

// Identity is the persisted device identity.
// Key material is stored base64url (no padding) over the raw key bytes.
type Identity struct {
	DeviceID    string     `json:"deviceId"`
	PublicKey   string     `json:"publicKey"`
	PrivateKey  string     `json:"privateKey"`
	CreatedAt   time.Time  `json:"createdAt"`
	DeviceToken string     `json:"deviceToken,omitempty"`
	PairedAt    *time.Time `json:"pairedAt,omitempty"`
	GatewayURL  string     `json:"gatewayUrl,omitempty"`
}

// Keys decodes the stored keypair.
func (id *Identity) Keys() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, err := base64.RawURLEncoding.DecodeString(id.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("%w: public key", ErrInvalidKey)
	}
	priv, err := base64.RawURLEncoding.DecodeString(id.PrivateKey)
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("%w: private key", ErrInvalidKey)
	}
	return ed25519.PublicKey(pub), ed25519.PrivateKey(priv), nil
}

// DeriveDeviceID derives the device id from the raw public key bytes.
func DeriveDeviceID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// Manager loads, persists, and upgrades the device identity file.
type Manager struct {
	mu   sync.Mutex
	path string

	// Cached identity; nil until first load or create.
	current *Identity
}

// NewManager creates a manager for the identity file at path.
// The file is created lazily on first use.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the identity file location.
func (m *Manager) Path() string {
	return m.path
}

// GetOrCreate returns the device identity, creating or repairing it as
// needed. Corrupted or unreadable files are treated as absent and
// regenerated, never surfaced as fatal errors.
func (m *Manager) GetOrCreate() (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked()
}

func (m *Manager) getOrCreateLocked() (*Identity, error) {
	if m.current != nil {
		return m.current, nil
	}

	id, dirty := m.load()
	if id == nil {
		generated, err := generate()
		if err != nil {
			return nil, err
		}
		id, dirty = generated, true
	}

	if dirty {
		if err := m.save(id); err != nil {
			return nil, err
		}
	}
	m.current = id
	return id, nil
}

// load reads the identity file. It returns nil when the file is absent or
// unusable, and dirty=true when the loaded identity was repaired and needs
// to be written back.
func (m *Manager) load() (id *Identity, dirty bool) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, false
	}

	var stored Identity
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false
	}

	pub, err := base64.RawURLEncoding.DecodeString(stored.PublicKey)
	if err != nil {
		// Legacy files used standard base64 over a DER encoding.
		pub, err = base64.StdEncoding.DecodeString(stored.PublicKey)
		if err != nil {
			return nil, false
		}
	}

	if isLegacyEncoding(pub) {
		// Stale key encoding: regenerate the full keypair. The new id is
		// re-derived from the new public key; the gateway treats the device
		// as unpaired either way, so the legacy id is not worth keeping.
		fresh, err := generate()
		if err != nil {
			return nil, false
		}
		fresh.GatewayURL = stored.GatewayURL
		return fresh, true
	}

	if len(pub) != ed25519.PublicKeySize {
		return nil, false
	}
	if _, _, err := stored.Keys(); err != nil {
		return nil, false
	}

	// Self-heal a device id that disagrees with the public key.
	if derived := DeriveDeviceID(pub); stored.DeviceID != derived {
		stored.DeviceID = derived
		dirty = true
	}
	return &stored, dirty
}

// isLegacyEncoding reports whether the decoded public key bytes carry the
// old SPKI DER header.
func isLegacyEncoding(pub []byte) bool {
	if len(pub) != len(spkiPrefix)+ed25519.PublicKeySize {
		return false
	}
	for i, b := range spkiPrefix {
		if pub[i] != b {
			return false
		}
	}
	return true
}

func generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device keypair: %w", err)
	}
	return &Identity{
		DeviceID:   DeriveDeviceID(pub),
		PublicKey:  base64.RawURLEncoding.EncodeToString(pub),
		PrivateKey: base64.RawURLEncoding.EncodeToString(priv),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// save writes the identity file with owner-only permissions.
// The write goes through a temp file and rename so a crash never leaves a
// half-written identity.
func (m *Manager) save(id *Identity) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	// Best effort on platforms without POSIX permissions.
	_ = os.Chmod(tmp, 0600)

	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace identity file: %w", err)
	}
	return nil
}

// SaveDeviceToken persists the token minted by the gateway on pairing
// approval and records the pairing time.
func (m *Manager) SaveDeviceToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.getOrCreateLocked()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	id.DeviceToken = token
	id.PairedAt = &now
	return m.save(id)
}

// DeviceToken returns the saved device token, or ErrNoDeviceToken.
func (m *Manager) DeviceToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.getOrCreateLocked()
	if err != nil {
		return "", err
	}
	if id.DeviceToken == "" {
		return "", ErrNoDeviceToken
	}
	return id.DeviceToken, nil
}

// ClearDeviceToken removes the pairing state but preserves the keypair.
func (m *Manager) ClearDeviceToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.getOrCreateLocked()
	if err != nil {
		return err
	}
	if id.DeviceToken == "" && id.PairedAt == nil {
		return nil
	}
	id.DeviceToken = ""
	id.PairedAt = nil
	return m.save(id)
}

// SetGatewayURL records the gateway this identity last paired with.
func (m *Manager) SetGatewayURL(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.getOrCreateLocked()
	if err != nil {
		return err
	}
	if id.GatewayURL == url {
		return nil
	}
	id.GatewayURL = url
	return m.save(id)
}

// Reset destroys the identity entirely, forcing key regeneration and
// re-pairing on next use.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove identity file: %w", err)
	}
	return nil
}
