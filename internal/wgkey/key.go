// Package wgkey provides the 32-byte Curve25519 key value types: private
// keys are zeroed on destruction and never appear in logs; public keys are
// safe to log and are base64-encoded on the wire.
package wgkey

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

const Size = 32

// PrivateKey holds secret key material. String and LogValue return redacted
// output; HexString is the only exported accessor that exposes the raw bytes
// (for the UAPI configuration string). Callers must call Zero when the key
// is no longer needed.
type PrivateKey struct {
	raw wgtypes.Key
}

// GeneratePrivateKey produces a fresh random private key.
func GeneratePrivateKey() (PrivateKey, error) {
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("generate private key: %w", err)
	}
	return PrivateKey{raw: k}, nil
}

// ParsePrivateKey accepts the standard base64 wire representation.
func ParsePrivateKey(s string) (PrivateKey, error) {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("parse private key: %w", err)
	}
	return PrivateKey{raw: k}, nil
}

// PublicKey derives the corresponding public key.
func (k PrivateKey) PublicKey() PublicKey {
	return PublicKey{raw: k.raw.PublicKey()}
}

// HexString returns the lowercase hex encoding the WireGuard UAPI
// configuration protocol expects for private_key=.
func (k PrivateKey) HexString() string {
	return hex.EncodeToString(k.raw[:])
}

// Zero overwrites the key material in place. Go has no destructors, so
// callers are expected to `defer priv.Zero()` immediately after obtaining one
// from a file or a generation call.
func (k *PrivateKey) Zero() {
	for i := range k.raw {
		k.raw[i] = 0
	}
}

// IsZero reports whether the key has been zeroed (or was never set).
func (k PrivateKey) IsZero() bool {
	for _, b := range k.raw {
		if b != 0 {
			return false
		}
	}
	return true
}

func (k PrivateKey) String() string {
	return "[REDACTED]"
}

func (k PrivateKey) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// PublicKey identifies a peer. Unlike PrivateKey it is safe to log.
type PublicKey struct {
	raw wgtypes.Key
}

func ParsePublicKey(s string) (PublicKey, error) {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parse public key: %w", err)
	}
	return PublicKey{raw: k}, nil
}

// ParsePublicKeyHex accepts the lowercase hex representation the WireGuard
// UAPI configuration protocol uses on the wire (IpcGet's public_key= lines).
func ParsePublicKeyHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != Size {
		return PublicKey{}, fmt.Errorf("parse hex public key: invalid encoding")
	}
	var k wgtypes.Key
	copy(k[:], b)
	return PublicKey{raw: k}, nil
}

func (k PublicKey) Base64() string {
	return k.raw.String()
}

func (k PublicKey) HexString() string {
	return hex.EncodeToString(k.raw[:])
}

func (k PublicKey) String() string {
	return k.Base64()
}

func (k PublicKey) LogValue() slog.Value {
	return slog.StringValue(k.Base64())
}

func (k PublicKey) Equal(other PublicKey) bool {
	return k.raw == other.raw
}

func (k PublicKey) IsZero() bool {
	var zero wgtypes.Key
	return k.raw == zero
}
