// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package localshare

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestSealer_SealThenOpenRoundTrips(t *testing.T) {
	s, err := newSealer()
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	aead, err := chacha20poly1305.New(s.key())
	if err != nil {
		t.Fatalf("rebuilding aead from key: %v", err)
	}

	plaintext := []byte("a chunk of file bytes")
	sealed := s.seal(plaintext)

	nonce := make([]byte, chacha20poly1305.NonceSize)
	copy(nonce[:4], s.salt[:])
	// counter for the chunk just sealed is one less than the sealer's
	// current (already-incremented) counter.
	nonce[11] = byte(s.counter - 1)

	opened, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened = %q, want %q", opened, plaintext)
	}
}

func TestSealer_NonceNeverRepeatsWithinSession(t *testing.T) {
	s, err := newSealer()
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	seen := make(map[uint64]bool)
	for i := 0; i < 10; i++ {
		c := s.counter
		if seen[c] {
			t.Fatalf("counter %d reused", c)
		}
		seen[c] = true
		s.seal([]byte("x"))
	}
}

func TestSealer_DistinctSessionsGetDistinctKeys(t *testing.T) {
	a, err := newSealer()
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}
	b, err := newSealer()
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}
	if bytes.Equal(a.key(), b.key()) {
		t.Fatal("two sessions minted the same key")
	}
}
