// Package identity manages the per-installation device identity: an Ed25519
// keypair, the device id derived from it, and the device token minted by the
// gateway when the device is paired.
//
// The identity is the sole persisted artifact of the engine. It lives in a
// single JSON file with owner-only permissions, is created lazily on first
// use, and is silently regenerated when the on-disk encoding is corrupted or
// legacy. A stored device id that disagrees with the public key is corrected
// in place.
//
// The device id is the lowercase hex SHA-256 of the raw public key bytes.
// This derivation, and the canonical pipe-delimited auth payload signed for
// challenge-response, are a binding contract with the remote gateway.
package identity
