// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package wsproto defines the JSON control schemas exchanged over text
// frames of the relay's websocket connections (§6.3), and a thin framing
// wrapper around gorilla/websocket that turns inbound messages into a
// channel the session state machines can select over.
package wsproto

// SendRequest is the sender's first text message.
type SendRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Size     uint64 `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// DoneRequest is the sender's end-of-stream terminator.
type DoneRequest struct {
	Type string `json:"type"` // "done"
}

// ServerToSender is the envelope for every text message the relay sends to
// a sender socket. At most one of the optional fields is populated per
// Type (none for start and paused), matching the table in spec.md §4.2.
type ServerToSender struct {
	Type   string `json:"type"` // ready|start|paused|resume|cancelled|error
	ID     string `json:"id,omitempty"`
	Offset uint64 `json:"offset,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServerToRecipient is the envelope for every text message the relay sends
// to a recipient socket.
type ServerToRecipient struct {
	Type     string `json:"type"` // metadata|done|error
	Filename string `json:"filename,omitempty"`
	Size     uint64 `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Server -> sender type constants.
const (
	TypeReady     = "ready"
	TypeStart     = "start"
	TypePaused    = "paused"
	TypeResume    = "resume"
	TypeCancelled = "cancelled"
	TypeError     = "error"
)

// Server -> recipient / shared terminal type constants.
const (
	TypeMetadata = "metadata"
	TypeDone     = "done"
)

// DefaultMimeType is substituted when a sender omits mime_type or sends an
// empty string (§3 FileMetadata).
const DefaultMimeType = "application/octet-stream"
