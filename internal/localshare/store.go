// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package localshare

import (
	"sync"
	"time"
)

// share is what a single-use token names: a file already open on disk
// under the server's control, not a sender-provided stream. Two browsers
// racing the same link can only ever have one of them win the claim.
type share struct {
	path      string
	filename  string
	size      uint64
	mimeType  string
	expiresAt time.Time
}

// Store is the local-share collaborator's token registry: a distinct
// namespace from the core relay's transfer ids and staging's upload ids
// (SPEC_FULL.md §11), single-use like the core relay's claim.
type Store struct {
	mu    sync.Mutex
	table map[string]share
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{table: make(map[string]share)}
}

// Put registers a new token naming an already-open local file, valid until
// ttl elapses.
func (s *Store) Put(token, path, filename string, size uint64, mimeType string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[token] = share{
		path:      path,
		filename:  filename,
		size:      size,
		mimeType:  mimeType,
		expiresAt: time.Now().Add(ttl),
	}
}

// Take atomically removes and returns the share named by token. A second
// Take on the same token observes ok == false, which is what gives the
// claim its at-most-once guarantee when two browsers race the same link.
// An expired entry is treated as absent and is dropped as a side effect.
func (s *Store) Take(token string) (share, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.table[token]
	if !ok {
		return share{}, false
	}
	delete(s.table, token)
	if time.Now().After(sh.expiresAt) {
		return share{}, false
	}
	return sh, true
}

// Sweep drops every unclaimed token that has passed its TTL and reports how
// many were removed. This is local-share's analogue of the core relay's
// Cleaner (spec.md §4.5): unclaimed tokens are the only state that can
// accumulate here, since a claimed token is already gone from the table.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for token, sh := range s.table {
		if now.After(sh.expiresAt) {
			delete(s.table, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of unclaimed tokens currently registered.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}
