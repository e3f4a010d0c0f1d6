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

// Package relayws is the client-side websocket adapter between a
// session.Manager and a HeliX relay: one reader goroutine feeding frames
// to a callback, one writer path serialized by a mutex, and a readiness
// signal the file-transfer sender paces itself against.
package relayws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helix-chat/helix-core/internal/logger"
)

// FrameHandler processes one inbound relay frame. It is called from the
// single reader goroutine, so it must not block for long.
type FrameHandler func(data []byte) error

// Conn is a single persistent connection to a relay. It implements
// session.Transport.
type Conn struct {
	url          string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	log          logger.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	writable chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the relay at url and starts the reader goroutine,
// which delivers every inbound frame to onFrame.
func Dial(ctx context.Context, url string, dialTimeout, writeTimeout time.Duration, onFrame FrameHandler, log logger.Logger) (*Conn, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
	wsConn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relayws: dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("relayws: dial failed: %w", err)
	}

	c := &Conn{
		url:          url,
		dialTimeout:  dialTimeout,
		writeTimeout: writeTimeout,
		log:          log,
		conn:         wsConn,
		writable:     make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
	c.markWritable()

	go c.readLoop(onFrame)
	return c, nil
}

// Send writes one frame to the relay, serialized by writeMu so concurrent
// callers (a chat message racing a transfer chunk) never interleave bytes
// on the wire (§5 single writer).
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("relayws: set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relayws: write: %w", err)
	}
	c.markWritable()
	return nil
}

// Writable reports the connection's write readiness. The transfer
// engine's chunk sender consults it before queuing the next chunk,
// pacing by transport readiness instead of an application-level ACK
// protocol (§9). A send always marks the channel writable again
// immediately afterward since gorilla/websocket's WriteMessage is
// itself synchronous and blocking.
func (c *Conn) Writable() <-chan struct{} {
	return c.writable
}

func (c *Conn) markWritable() {
	select {
	case c.writable <- struct{}{}:
	default:
	}
}

func (c *Conn) readLoop(onFrame FrameHandler) {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("relayws: read error", logger.Error(err))
			}
			return
		}
		c.markWritable()
		if err := onFrame(data); err != nil {
			c.log.Warn("relayws: frame handling failed", logger.Error(err))
		}
	}
}

// Close sends a normal-closure control frame and tears down the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		writeErr := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		closeErr := c.conn.Close()
		if writeErr != nil {
			err = writeErr
		} else {
			err = closeErr
		}
	})
	<-c.closed
	return err
}
