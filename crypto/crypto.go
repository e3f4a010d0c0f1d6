// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package crypto implements the cryptographic primitives a HeliX session
// needs: ephemeral ECDH P-256 key agreement, SPKI key encoding, HKDF-SHA256
// key derivation, and AES-GCM-256 authenticated encryption. Every peer key
// is ephemeral and never persisted, so unlike a general-purpose key
// management layer this package exposes plain functions rather than a
// storage-backed KeyPair registry.
package crypto

import "errors"

// Sentinel errors returned by this package. Callers should compare with
// errors.Is rather than string matching.
var (
	// ErrInvalidKey is returned when SPKI bytes cannot be parsed as a
	// P-256 public key.
	ErrInvalidKey = errors.New("crypto: invalid key")
	// ErrAuthFailed is returned by Open when the AEAD tag does not
	// verify. No partial plaintext is ever returned alongside this error.
	ErrAuthFailed = errors.New("crypto: authentication failed")
)

const (
	// KeySize is the AES-GCM-256 key size in bytes.
	KeySize = 32
	// NonceSize is the AES-GCM IV size in bytes (96 bits).
	NonceSize = 12
)
