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

// Package envelope implements the authenticated, encrypted ping record
// exchanged between two pinger clients once they share a key: a
// ChaCha20-Poly1305-sealed, fixed-layout 32-byte position encoded with a
// "PING" magic number, a 12-byte nonce, and a 16-byte authentication tag.
package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/janm-relay/pinger/crypto/keys"
)

const (
	magic = "PING"

	// PlaintextSize is the length of an encoded, unencrypted PingInfo.
	PlaintextSize = 32
	// EncryptedSize is the length of a sealed EncryptedPingInfo: 4-byte
	// magic + 12-byte nonce + 32-byte ciphertext + 16-byte tag.
	EncryptedSize = 64
	// encodedSize is the base64 (URL-safe, unpadded) length of EncryptedSize
	// bytes: ceil(64*8/6) with no padding.
	encodedSize = 86
)

// ErrCrypto is returned for any cryptographic failure: a missing magic
// number, a forged tag, or a generation failure. It is intentionally opaque
// so that callers cannot distinguish "tampered" from "wrong key" from
// "corrupted on the wire".
var ErrCrypto = errors.New("pinger: cryptographic operation failed")

// PingInfo is a timestamped geographic position.
type PingInfo struct {
	// Timestamp is seconds since the Unix epoch.
	Timestamp uint64
	// Latitude and Longitude are in degrees.
	Latitude, Longitude float64
	// Altitude is meters above mean sea level.
	Altitude float32
	// ErrorMeters is the estimated position error in meters.
	ErrorMeters float32
}

// EncryptedPingInfo is an AEAD-sealed PingInfo ready for the wire.
type EncryptedPingInfo [EncryptedSize]byte

// Encrypt encodes and seals p under key, returning a fresh EncryptedPingInfo
// with a randomly generated nonce.
func (p PingInfo) Encrypt(key keys.SharedKey) (EncryptedPingInfo, error) {
	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return EncryptedPingInfo{}, ErrCrypto
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedPingInfo{}, ErrCrypto
	}

	plaintext := p.encode()
	sealed := aead.Seal(nil, nonce, plaintext[:], nil)

	var out EncryptedPingInfo
	copy(out[0:4], magic)
	copy(out[4:16], nonce)
	copy(out[16:EncryptedSize], sealed)

	return out, nil
}

// Decrypt verifies and opens an EncryptedPingInfo under key, returning the
// original PingInfo.
func Decrypt(enc EncryptedPingInfo, key keys.SharedKey) (PingInfo, error) {
	if string(enc[0:4]) != magic {
		return PingInfo{}, ErrCrypto
	}

	aead, err := chacha20poly1305.New(key.Bytes())
	if err != nil {
		return PingInfo{}, ErrCrypto
	}

	nonce := enc[4:16]
	sealed := enc[16:EncryptedSize]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return PingInfo{}, ErrCrypto
	}

	var buf [PlaintextSize]byte
	copy(buf[:], plaintext)

	return decode(buf), nil
}

func (p PingInfo) encode() [PlaintextSize]byte {
	var buf [PlaintextSize]byte
	binary.BigEndian.PutUint64(buf[0:8], p.Timestamp)
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(p.Latitude))
	binary.BigEndian.PutUint64(buf[16:24], math.Float64bits(p.Longitude))
	binary.BigEndian.PutUint32(buf[24:28], math.Float32bits(p.Altitude))
	binary.BigEndian.PutUint32(buf[28:32], math.Float32bits(p.ErrorMeters))
	return buf
}

func decode(buf [PlaintextSize]byte) PingInfo {
	return PingInfo{
		Timestamp:   binary.BigEndian.Uint64(buf[0:8]),
		Latitude:    math.Float64frombits(binary.BigEndian.Uint64(buf[8:16])),
		Longitude:   math.Float64frombits(binary.BigEndian.Uint64(buf[16:24])),
		Altitude:    math.Float32frombits(binary.BigEndian.Uint32(buf[24:28])),
		ErrorMeters: math.Float32frombits(binary.BigEndian.Uint32(buf[28:32])),
	}
}

// MarshalJSON encodes the envelope as a URL-safe, unpadded base64 string, as
// the wire schema requires.
func (e EncryptedPingInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(e[:]))
}

// UnmarshalJSON decodes a base64 string produced by MarshalJSON.
func (e *EncryptedPingInfo) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(decoded) != EncryptedSize {
		return fmt.Errorf("envelope: expected a base64-encoded %d-byte value, got %q", EncryptedSize, s)
	}

	copy(e[:], decoded)
	return nil
}
