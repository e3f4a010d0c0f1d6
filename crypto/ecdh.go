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

package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/x509"
	"fmt"
)

// GenerateECDH creates a fresh ephemeral P-256 key pair. The private key
// never leaves this package's callers in any exportable form; only the
// public key is ever serialized (ExportSPKI).
func GenerateECDH() (*ecdh.PrivateKey, *ecdh.PublicKey, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: generate ecdh key: %w", err)
	}
	return priv, priv.PublicKey(), nil
}

// ExportSPKI encodes a P-256 public key in SubjectPublicKeyInfo (SPKI) DER
// form, the wire format the HeliX handshake exchanges.
func ExportSPKI(pub *ecdh.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal spki: %w", err)
	}
	return der, nil
}

// ImportSPKI parses SPKI DER bytes into a P-256 ECDH public key. Any key
// that is not on the P-256 curve is rejected with ErrInvalidKey.
func ImportSPKI(der []byte) (*ecdh.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	ecdsaLike, ok := pub.(interface {
		ECDH() (*ecdh.PublicKey, error)
	})
	if !ok {
		return nil, ErrInvalidKey
	}
	ecdhPub, err := ecdsaLike.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if ecdhPub.Curve() != ecdh.P256() {
		return nil, ErrInvalidKey
	}
	return ecdhPub, nil
}

// DeriveShared computes the raw ECDH shared secret between own and peer.
// The result is NOT a usable session key by itself; callers must run it
// through HKDF (DeriveSessionKey) before use.
func DeriveShared(own *ecdh.PrivateKey, peer *ecdh.PublicKey) ([]byte, error) {
	secret, err := own.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive shared secret: %w", err)
	}
	return secret, nil
}
