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

package transfer

import (
	"errors"
	"fmt"
)

// Role identifies which side of a transfer this process plays.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// Status is the transfer's lifecycle state.
type Status int

const (
	StatusOffered Status = iota
	StatusAccepted
	StatusRejected
	StatusTransferring
	StatusComplete
	StatusCancelled
	StatusErrored
)

func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusRejected, StatusCancelled, StatusErrored:
		return true
	default:
		return false
	}
}

var (
	ErrSizeExceeded    = errors.New("transfer: file size exceeds max_file_bytes")
	ErrChunkOutOfOrder = errors.New("transfer: chunk index out of order")
	ErrChunkDuplicate  = errors.New("transfer: duplicate chunk index")
	ErrChunkCountMismatch = errors.New("transfer: totalChunks does not match chunks received")
)

// Transfer is the per-transfer state (§3, Transfer state).
type Transfer struct {
	ID       string
	Role     Role
	FileName string
	FileSize int64
	MimeType string
	Status   Status

	NextChunkIndex int
	BytesDone      int64

	// Source is the sender-only byte stream being chunked and sent.
	Source []byte
	// sendOffset tracks how much of Source has been chunked so far.
	sendOffset int

	chunkBytes int
}

// NewOutbound creates a sender-side transfer offering data under fileName,
// chunked in chunkBytes-sized pieces. Returns ErrSizeExceeded if len(data)
// exceeds maxFileBytes.
func NewOutbound(id, fileName, mimeType string, data []byte, chunkBytes int, maxFileBytes int64) (*Transfer, error) {
	if int64(len(data)) > maxFileBytes {
		return nil, ErrSizeExceeded
	}
	return &Transfer{
		ID:         id,
		Role:       RoleSender,
		FileName:   fileName,
		FileSize:   int64(len(data)),
		MimeType:   mimeType,
		Status:     StatusOffered,
		Source:     data,
		chunkBytes: chunkBytes,
	}, nil
}

// NewInbound creates a receiver-side transfer from an incoming Type 12
// offer. Returns ErrSizeExceeded if fileSize exceeds maxFileBytes.
func NewInbound(id, fileName, mimeType string, fileSize int64, maxFileBytes int64) (*Transfer, error) {
	if fileSize > maxFileBytes {
		return nil, ErrSizeExceeded
	}
	return &Transfer{
		ID:       id,
		Role:     RoleReceiver,
		FileName: fileName,
		FileSize: fileSize,
		MimeType: mimeType,
		Status:   StatusOffered,
	}, nil
}

// TotalChunks returns ceil(FileSize / chunkBytes), with chunkBytes taken
// from the sender's configured chunk size (0 and empty files are one
// chunk of length 0, per B2).
func TotalChunks(fileSize int64, chunkBytes int) int {
	if fileSize == 0 {
		return 1
	}
	n := fileSize / int64(chunkBytes)
	if fileSize%int64(chunkBytes) != 0 {
		n++
	}
	return int(n)
}

// NextChunk returns the next plaintext chunk to send and advances
// sendOffset, or ok=false once every byte (including the empty-file case)
// has been produced exactly once.
func (t *Transfer) NextChunk() (chunk []byte, index int, ok bool) {
	total := TotalChunks(t.FileSize, t.chunkBytes)
	if t.NextChunkIndex >= total {
		return nil, 0, false
	}
	start := t.sendOffset
	end := start + t.chunkBytes
	if end > len(t.Source) {
		end = len(t.Source)
	}
	chunk = t.Source[start:end]
	index = t.NextChunkIndex
	t.sendOffset = end
	t.NextChunkIndex++
	t.BytesDone += int64(len(chunk))
	return chunk, index, true
}

// AcceptChunk validates an inbound chunk's index against NextChunkIndex
// (must start at 0 and increase by 1 without gaps, per §4.5) and, if
// valid, advances receiver bookkeeping. Callers persist the plaintext to
// the Store themselves after decrypting.
func (t *Transfer) AcceptChunk(index int, plaintextLen int) error {
	if index < t.NextChunkIndex {
		return ErrChunkDuplicate
	}
	if index > t.NextChunkIndex {
		return ErrChunkOutOfOrder
	}
	t.NextChunkIndex++
	t.BytesDone += int64(plaintextLen)
	return nil
}

// CheckComplete verifies the sender-declared totalChunks matches what the
// receiver actually saw (§4.5, Type 16 handling).
func (t *Transfer) CheckComplete(totalChunks int) error {
	if t.NextChunkIndex != totalChunks {
		return fmt.Errorf("%w: got %d, want %d", ErrChunkCountMismatch, t.NextChunkIndex, totalChunks)
	}
	return nil
}
