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

package wire

import "encoding/json"

// RegisterPayload is Type 0, client → relay.
type RegisterPayload struct {
	Identifier string `json:"identifier"`
}

func (p RegisterPayload) Validate() error { return ValidateIdentifier(p.Identifier) }

// RegisterResultPayload is the relay's reply to Type 0.
type RegisterResultPayload struct {
	Status string `json:"status"` // OK, TAKEN, INVALID
}

// SessionRequestPayload is Type 1, I → R.
type SessionRequestPayload struct {
	Recipient string `json:"recipient"`
}

func (p SessionRequestPayload) Validate() error { return ValidateIdentifier(p.Recipient) }

// SessionAcceptPayload is Type 2, R → I.
type SessionAcceptPayload struct {
	PublicKey string `json:"publicKey"`
}

func (p SessionAcceptPayload) Validate() error { return checkLen("publicKey", p.PublicKey, MaxPublicKeyB64Len) }

// SessionDenyPayload is Type 3, R → I; empty body.
type SessionDenyPayload struct{}

// PublicKeyResponsePayload is Type 4, I → R.
type PublicKeyResponsePayload struct {
	PublicKey string `json:"publicKey"`
}

func (p PublicKeyResponsePayload) Validate() error {
	return checkLen("publicKey", p.PublicKey, MaxPublicKeyB64Len)
}

// KeyConfirmChallengePayload is Type 5, R → I.
type KeyConfirmChallengePayload struct {
	IV                 string `json:"iv"`
	EncryptedChallenge string `json:"encryptedChallenge"`
}

func (p KeyConfirmChallengePayload) Validate() error {
	if err := checkLen("iv", p.IV, MaxIVB64Len); err != nil {
		return err
	}
	return checkLen("encryptedChallenge", p.EncryptedChallenge, MaxEncryptedB64Len)
}

// KeyConfirmResponsePayload is Type 6, I → R.
type KeyConfirmResponsePayload struct {
	IV                string `json:"iv"`
	EncryptedResponse string `json:"encryptedResponse"`
}

func (p KeyConfirmResponsePayload) Validate() error {
	if err := checkLen("iv", p.IV, MaxIVB64Len); err != nil {
		return err
	}
	return checkLen("encryptedResponse", p.EncryptedResponse, MaxEncryptedB64Len)
}

// SessionEstablishedPayload is Type 7; empty body.
type SessionEstablishedPayload struct{}

// EncryptedMessagePayload is Type 8, either direction.
type EncryptedMessagePayload struct {
	IV   string `json:"iv"`
	Data string `json:"data"`
}

func (p EncryptedMessagePayload) Validate() error {
	if err := checkLen("iv", p.IV, MaxIVB64Len); err != nil {
		return err
	}
	return checkLen("data", p.Data, MaxEncryptedB64Len)
}

// SessionEndPayload is Type 9; empty body.
type SessionEndPayload struct{}

// TypingStartPayload is Type 10; empty body.
type TypingStartPayload struct{}

// TypingStopPayload is Type 11; empty body.
type TypingStopPayload struct{}

// TransferRequestPayload is Type 12, sender → receiver.
type TransferRequestPayload struct {
	TransferID string `json:"transferId"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	MimeType   string `json:"mimeType"`
}

func (p TransferRequestPayload) Validate() error {
	if err := checkLen("fileName", p.FileName, MaxFileNameLen); err != nil {
		return err
	}
	if err := checkLen("mimeType", p.MimeType, MaxMimeTypeLen); err != nil {
		return err
	}
	if p.FileSize < 0 {
		return ErrMalformed
	}
	return nil
}

// TransferAcceptPayload is Type 13, receiver → sender.
type TransferAcceptPayload struct {
	TransferID string `json:"transferId"`
}

// TransferRejectPayload is Type 14, receiver → sender.
type TransferRejectPayload struct {
	TransferID string `json:"transferId"`
	Reason     string `json:"reason,omitempty"`
}

// TransferChunkPayload is Type 15, sender → receiver.
type TransferChunkPayload struct {
	TransferID string `json:"transferId"`
	ChunkIndex int    `json:"chunkIndex"`
	IV         string `json:"iv"`
	Data       string `json:"data"`
}

func (p TransferChunkPayload) Validate() error {
	if err := checkLen("iv", p.IV, MaxIVB64Len); err != nil {
		return err
	}
	if err := checkLen("data", p.Data, MaxEncryptedB64Len); err != nil {
		return err
	}
	if p.ChunkIndex < 0 {
		return ErrMalformed
	}
	return nil
}

// TransferCompletePayload is Type 16, sender → receiver.
type TransferCompletePayload struct {
	TransferID  string `json:"transferId"`
	TotalChunks int    `json:"totalChunks"`
}

// TransferErrorPayload is Type 17, either direction.
type TransferErrorPayload struct {
	TransferID string `json:"transferId"`
	Reason     string `json:"reason"`
}

// SASConfirmPayload rides envelope Type 18.
type SASConfirmPayload struct {
	PeerID string `json:"peer_id"`
}

// SASDenyPayload rides envelope Type 19.
type SASDenyPayload struct {
	PeerID string `json:"peer_id"`
}

// Decode unmarshals env.Payload into dst and, if dst implements the
// validator interface, runs its Validate method.
func Decode(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return err
	}
	if v, ok := dst.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}
