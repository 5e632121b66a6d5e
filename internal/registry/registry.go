// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package registry is the process-wide concurrent mapping from transfer id
// to transfer entry. It is the only shared mutable state in the core relay:
// every mutation goes through Take (atomic remove-and-return) followed by
// Put, never a read-then-modify pair, so a concurrent claim can never
// observe a half-updated entry.
package registry

import (
	"sync"

	"github.com/dropvault/dropvault/internal/rendezvous"
)

// State is the tagged state of a TransferEntry.
type State int

const (
	// WaitingForRecipient: sender is connected and registered; no recipient yet.
	WaitingForRecipient State = iota
	// Reconnecting: recipient dropped mid-transfer; sender awaits a new claim.
	Reconnecting
	// Active: a recipient is currently attached and relay is in progress.
	Active
	// Done: terminal; eligible for Cleaner sweep.
	Done
)

func (s State) String() string {
	switch s {
	case WaitingForRecipient:
		return "waiting_for_recipient"
	case Reconnecting:
		return "reconnecting"
	case Active:
		return "active"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Metadata is the advisory file description supplied by the sender at
// registration time.
type Metadata struct {
	Filename string
	Size     uint64
	MimeType string
}

// Entry is the tagged variant of §3: only WaitingForRecipient and
// Reconnecting carry a non-nil LinkTx, the sender's one-shot producer for a
// rendezvous.Link, and GiveUp, closed by the sender if it abandons this
// one-shot without ever publishing a Link (socket error, shutdown, or
// reconnect timeout). A claiming recipient races its send against GiveUp to
// detect that exact race instead of blocking forever on an abandoned
// producer. Active and Done carry no payload beyond their state.
type Entry struct {
	State    State
	Metadata Metadata
	LinkTx   chan<- rendezvous.Link
	GiveUp   <-chan struct{}
}

// Registry is a concurrent id -> *Entry map. All mutating operations are
// expressed as an atomic take-then-put; there is no lock/unlock pair
// exposed to callers, so a read-then-modify race is structurally
// impossible from outside this package.
type Registry struct {
	m sync.Map // string -> *Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// InsertUnique inserts entry under id and reports success. It fails without
// mutating anything if id is already present; callers mint a fresh id and
// retry (bounded) on failure.
func (r *Registry) InsertUnique(id string, entry *Entry) bool {
	_, loaded := r.m.LoadOrStore(id, entry)
	return !loaded
}

// Take atomically removes and returns the entry for id. A second Take on
// the same id (concurrent or sequential) observes ok == false: this is the
// primitive that gives claim-at-most-once its atomicity.
func (r *Registry) Take(id string) (*Entry, bool) {
	v, ok := r.m.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// TakeIf atomically removes and returns the entry for id only if pred
// accepts it, using CompareAndDelete so a concurrent mutation between the
// read and the delete is never silently lost. If id is absent, or pred
// rejects the entry, nothing is removed: the (unmodifiable) current entry
// is returned for inspection alongside ok == false. This is the primitive a
// claim attempt uses instead of Take so that a losing claimant never has to
// decide whether putting the entry back would race a concurrent terminal
// transition written by the winner.
func (r *Registry) TakeIf(id string, pred func(*Entry) bool) (*Entry, bool) {
	for {
		v, ok := r.m.Load(id)
		if !ok {
			return nil, false
		}
		entry := v.(*Entry)
		if !pred(entry) {
			return entry, false
		}
		if r.m.CompareAndDelete(id, v) {
			return entry, true
		}
		// Entry changed between Load and CompareAndDelete; re-evaluate pred
		// against whatever is there now instead of deleting stale state.
	}
}

// Put unconditionally (re-)inserts entry under id, replacing whatever a
// prior Take removed.
func (r *Registry) Put(id string, entry *Entry) {
	r.m.Store(id, entry)
}

// Remove drops id without returning anything.
func (r *Registry) Remove(id string) {
	r.m.Delete(id)
}

// Peek is read-only inspection: it does not claim ownership and must not be
// used as the basis for a mutation decision (see package doc).
func (r *Registry) Peek(id string) (*Entry, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Sweep removes every entry for which pred returns true and reports how
// many were removed.
func (r *Registry) Sweep(pred func(*Entry) bool) int {
	removed := 0
	r.m.Range(func(key, value any) bool {
		entry := value.(*Entry)
		if pred(entry) {
			r.m.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Len returns the current number of entries. Intended for tests and
// metrics; racy by nature against concurrent inserts/removals.
func (r *Registry) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
