// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package localshare

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealer encrypts a local-share session's outbound chunks with a fresh
// per-session key and a monotonically incrementing nonce, so the process
// never reuses a (key, nonce) pair within a session. The key lives only in
// memory for the session's lifetime and is handed to the browser once, in
// the share-ready control message.
type sealer struct {
	aead    cipher.AEAD
	rawKey  []byte
	salt    [4]byte
	counter uint64
}

// newSealer generates a fresh key and session salt with crypto/rand.
func newSealer() (*sealer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("localshare: generating session key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("localshare: building aead: %w", err)
	}

	var salt [4]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("localshare: generating nonce salt: %w", err)
	}

	return &sealer{aead: aead, rawKey: key, salt: salt}, nil
}

// key returns the raw session key, exposed only so the caller can encode it
// into the share-ready message; it is never persisted or logged beyond that
// single control message.
func (s *sealer) key() []byte {
	return s.rawKey
}

// seal encrypts plaintext into a newly allocated slice, using the session's
// monotonically incrementing 96-bit nonce: a 4-byte salt fixed for the
// session followed by an 8-byte big-endian counter. The counter increments
// on every call and is never reused.
func (s *sealer) seal(plaintext []byte) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	copy(nonce[:4], s.salt[:])
	binary.BigEndian.PutUint64(nonce[4:], s.counter)
	s.counter++
	return s.aead.Seal(nil, nonce, plaintext, nil)
}
