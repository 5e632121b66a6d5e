// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package wsproto

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Socket framing limits from spec.md §6.1.
const (
	MaxMessageBytes = 1 << 30  // 1 GiB
	MaxFrameBytes   = 16 << 20 // 16 MiB
)

// writeWait bounds control-frame writes (ping) so a stalled peer can't hang
// the keepalive goroutine forever.
const writeWait = 10 * time.Second

// Upgrader is shared by every endpoint that promotes an HTTP request to a
// websocket connection. Origin checking is left permissive here: CORS
// policy is an HTTP-framework concern out of this core's scope (spec.md §1
// Non-goals) and is expected to be layered on by the deployment.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Inbound is one event read off a Conn's background read loop. Err is
// non-nil exactly on the terminal event (read error or peer close); Type
// and Data are meaningful only when Err is nil.
type Inbound struct {
	Type int
	Data []byte
	Err  error
}

// Conn wraps a gorilla/websocket connection with the read-limit enforcement
// of §6.1 and a channel-based read loop so session state machines can
// select over inbound frames alongside timers and internal channels.
type Conn struct {
	ws *websocket.Conn
}

// NewConn wraps an already-upgraded websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(MaxMessageBytes)
	return &Conn{ws: ws}
}

// ReadLoop spawns a goroutine that reads frames until a fatal error or
// close, delivering each onto the returned channel. The channel receives
// exactly one Inbound with a non-nil Err as its final value, then is
// closed. Callers must keep draining the channel until it closes to avoid
// leaking the reader goroutine.
func (c *Conn) ReadLoop() <-chan Inbound {
	out := make(chan Inbound, 1)
	go func() {
		defer close(out)
		for {
			mt, data, err := c.ws.ReadMessage()
			if err != nil {
				out <- Inbound{Err: err}
				return
			}
			if len(data) > MaxFrameBytes {
				out <- Inbound{Err: fmt.Errorf("wsproto: frame of %d bytes exceeds max %d", len(data), MaxFrameBytes)}
				return
			}
			out <- Inbound{Type: mt, Data: data}
		}
	}()
	return out
}

// WriteJSON sends v as a text frame.
func (c *Conn) WriteJSON(v any) error {
	return c.ws.WriteJSON(v)
}

// WriteBinary sends b as a single binary frame. Callers are responsible for
// keeping b within MaxFrameBytes.
func (c *Conn) WriteBinary(b []byte) error {
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// Ping sends a protocol-level ping control frame.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// SetPongHandler installs the callback invoked when a pong control frame
// arrives on the background read loop.
func (c *Conn) SetPongHandler(h func(appData string) error) {
	c.ws.SetPongHandler(h)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// RemoteAddr reports the peer address, for logging.
func (c *Conn) RemoteAddr() string {
	if a := c.ws.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
