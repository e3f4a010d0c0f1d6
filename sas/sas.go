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

// Package sas derives the Short Authentication String peers compare
// out-of-band to detect a man-in-the-middle on the handshake.
package sas

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"
)

// Derive computes the six-digit SAS for a pair of SPKI-encoded public
// keys. The keys are sorted lexicographically (by their base64 form)
// before concatenation so both peers compute the same string regardless
// of which one is "own" and which is "peer" — see L3.
func Derive(ownSPKI, peerSPKI []byte) string {
	ownB64 := base64.StdEncoding.EncodeToString(ownSPKI)
	peerB64 := base64.StdEncoding.EncodeToString(peerSPKI)

	pair := []string{ownB64, peerB64}
	sort.Strings(pair)

	digest := sha256.Sum256([]byte(pair[0] + pair[1]))
	n := binary.BigEndian.Uint32(digest[:4])
	code := n % 1_000_000

	return fmt.Sprintf("%03d %03d", code/1000, code%1000)
}
