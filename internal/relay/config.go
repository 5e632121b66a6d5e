// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package relay implements the sender/recipient handshake state machine,
// the bidirectional relay pump, keepalive, and the registry cleaner — the
// hard part of dropvault (spec.md §4.2–§4.5).
package relay

import "time"

// Config tunes the timers the core relay depends on. The zero value is
// invalid; use DefaultConfig and override fields the caller cares about
// (tests shrink these intervals to keep runs fast).
type Config struct {
	// KeepAliveInterval is how often a waiting/reconnecting sender receives
	// a protocol-level ping (spec.md §4.2 keepalive).
	KeepAliveInterval time.Duration
	// ReconnectWindow is the absolute time a sender waits in
	// AWAITING_RECONNECT before the transfer is cancelled (spec.md §4.2).
	ReconnectWindow time.Duration
	// CleanerInterval is how often the registry is swept for Done entries
	// (spec.md §4.5).
	CleanerInterval time.Duration
	// MaxIDRetries bounds the total number of ids minted for one
	// registration, the first included, before an insert-unique collision
	// makes the sender give up (spec.md §7).
	MaxIDRetries int
}

// DefaultConfig matches the literal intervals spec.md §4.2/§4.5 specify.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval: 15 * time.Second,
		ReconnectWindow:   30 * time.Second,
		CleanerInterval:   60 * time.Second,
		MaxIDRetries:      5,
	}
}
