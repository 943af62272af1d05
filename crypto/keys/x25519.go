// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package keys implements the X25519 key agreement used to derive the
// per-exchange shared key between two pinger clients.
package keys

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PublicKeySize is the length in bytes of an encoded X25519 public key.
const PublicKeySize = 32

// SharedKey is the symmetric key produced by an X25519 key agreement, used
// directly as the ChaCha20-Poly1305 key for a ping envelope.
type SharedKey [32]byte

// Bytes returns the raw key material.
func (k SharedKey) Bytes() []byte {
	return k[:]
}

// EphemeralSecret is a one-time X25519 private key. A client generates a
// fresh one for every exchange; it must never be persisted, reused across
// exchanges, or transmitted. Call DiffieHellman at most once per secret.
type EphemeralSecret struct {
	priv *ecdh.PrivateKey
}

// PublicKey is an X25519 public key.
type PublicKey struct {
	pub *ecdh.PublicKey
}

// GenerateEphemeralSecret creates a new random X25519 key pair.
func GenerateEphemeralSecret() (*EphemeralSecret, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate x25519 key: %w", err)
	}
	return &EphemeralSecret{priv: priv}, nil
}

// PublicKey returns the public key matching this secret.
func (s *EphemeralSecret) PublicKey() PublicKey {
	return PublicKey{pub: s.priv.PublicKey()}
}

// DiffieHellman performs an X25519 key agreement against peer. The raw
// 32-byte ECDH output is used directly as the SharedKey: no KDF is applied,
// since every key pair is ephemeral and used for exactly one exchange.
func (s *EphemeralSecret) DiffieHellman(peer PublicKey) (SharedKey, error) {
	if peer.pub == nil {
		return SharedKey{}, fmt.Errorf("keys: peer public key is empty")
	}

	raw, err := s.priv.ECDH(peer.pub)
	if err != nil {
		return SharedKey{}, fmt.Errorf("keys: x25519 key agreement: %w", err)
	}

	return SharedKey(raw), nil
}

// Bytes returns the raw 32-byte encoding of the public key.
func (p PublicKey) Bytes() []byte {
	if p.pub == nil {
		return nil
	}
	return p.pub.Bytes()
}

// IsZero reports whether p holds no key material.
func (p PublicKey) IsZero() bool {
	return p.pub == nil
}

// PublicKeyFromBytes parses a 32-byte X25519 public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("keys: public key must be %d bytes, got %d", PublicKeySize, len(b))
	}

	pub, err := ecdh.X25519().NewPublicKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("keys: invalid x25519 public key: %w", err)
	}

	return PublicKey{pub: pub}, nil
}

// MarshalJSON encodes the public key as a URL-safe, unpadded base64 string,
// as the wire schema requires.
func (p PublicKey) MarshalJSON() ([]byte, error) {
	if p.pub == nil {
		return nil, fmt.Errorf("keys: cannot marshal an empty public key")
	}
	return json.Marshal(base64.RawURLEncoding.EncodeToString(p.pub.Bytes()))
}

// UnmarshalJSON decodes a base64 string produced by MarshalJSON.
func (p *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("keys: invalid base64 public key %q: %w", s, err)
	}

	key, err := PublicKeyFromBytes(decoded)
	if err != nil {
		return err
	}

	*p = key
	return nil
}
