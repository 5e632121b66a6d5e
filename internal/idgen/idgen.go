// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package idgen mints short, URL-safe, collision-resistant opaque
// identifiers for transfers, staging uploads, and local-share tokens.
package idgen

import (
	"crypto/rand"
	"fmt"
)

// alphabet is URL-safe (RFC 4648 §5 without padding) and has 64 symbols, so
// each character carries a full 6 bits of entropy.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Length is the number of characters in a generated id.
const Length = 12

// New returns a random Length-character id drawn from alphabet using a
// cryptographically strong source. It does not check for collisions; the
// caller (normally a registry's insert-unique operation) is responsible for
// rejecting and retrying on collision.
func New() (string, error) {
	raw := make([]byte, Length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("idgen: reading random bytes: %w", err)
	}

	id := make([]byte, Length)
	for i, b := range raw {
		id[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(id), nil
}
