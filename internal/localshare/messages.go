// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package localshare implements the local-share collaborator mode
// (spec.md §1 collaborator (b), SPEC_FULL.md §11): the relay process
// itself owns a local file and streams it directly to a browser over a
// websocket, sealing each chunk with a per-session AEAD key so the bytes
// are opaque on the wire even though this mode never touches the core
// relay's sender/recipient registry.
package localshare

// Server -> browser control type constants.
const (
	TypeShareReady = "share-ready"
	TypeDone       = "done"
	TypeError      = "error"
)

// ShareReady is the first text message sent once a token has been claimed.
// The browser is trusted with the key and salt since it is the share's sole
// recipient by construction.
type ShareReady struct {
	Type      string `json:"type"` // share-ready
	KeyB64    string `json:"key_b64"`
	NonceSalt string `json:"nonce_salt"` // base64 of the 4-byte session salt
	Filename  string `json:"filename"`
	Size      uint64 `json:"size"`
	MimeType  string `json:"mime_type"`
}

// Done is sent after the last sealed chunk.
type Done struct {
	Type string `json:"type"` // done
}

// Error is sent when reading the shared file fails mid-stream. A failed
// claim never reaches the websocket: it is answered with HTTP 404.
type Error struct {
	Type  string `json:"type"` // error
	Error string `json:"error"`
}
