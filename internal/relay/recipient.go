// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"log/slog"

	"github.com/dropvault/dropvault/internal/registry"
	"github.com/dropvault/dropvault/internal/rendezvous"
	"github.com/dropvault/dropvault/internal/wsproto"
)

// RecipientSession drives one recipient socket through a single claim
// attempt: take the entry, hand back metadata, publish a Link into the
// sender's one-shot, then pump relayed bytes to the socket until the
// stream ends or either side gives up (spec.md §4.3).
type RecipientSession struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// NewRecipientSession builds a session bound to reg.
func NewRecipientSession(reg *registry.Registry, logger *slog.Logger) *RecipientSession {
	return &RecipientSession{reg: reg, logger: logger}
}

// Run executes the claim algorithm for id and, on success, relays bytes
// until the transfer completes or this recipient drops out. It never
// mutates the entry's terminal Done state; only the sender does that.
func (rs *RecipientSession) Run(id string, resumeOffset uint64, conn *wsproto.Conn) {
	claimable := func(e *registry.Entry) bool {
		return e.State == registry.WaitingForRecipient || e.State == registry.Reconnecting
	}
	entry, ok := rs.reg.TakeIf(id, claimable)
	if !ok {
		// Missing, Active, or Done all read the same to a claimant: the
		// entry (if any) was left untouched by TakeIf, so there is nothing
		// to restore and no race with whoever legitimately owns it.
		_ = conn.WriteJSON(wsproto.ServerToRecipient{Type: wsproto.TypeError, Error: "Transfer not found or already claimed"})
		_ = conn.Close()
		return
	}

	dataTx, dataRx, cancelTx, cancelRx := rendezvous.NewQueue()

	if err := conn.WriteJSON(wsproto.ServerToRecipient{
		Type:     wsproto.TypeMetadata,
		Filename: entry.Metadata.Filename,
		Size:     entry.Metadata.Size,
		MimeType: entry.Metadata.MimeType,
	}); err != nil {
		// This recipient never attached; give the sender another chance at
		// a live claim rather than losing its transfer to a dead socket.
		rs.reg.Put(id, entry)
		_ = conn.Close()
		return
	}

	link := rendezvous.Link{DataTx: dataTx, CancelRx: cancelRx, ResumeOffset: resumeOffset}
	select {
	case entry.LinkTx <- link:
	case <-entry.GiveUp:
		_ = conn.WriteJSON(wsproto.ServerToRecipient{Type: wsproto.TypeError, Error: "sender disconnected"})
		_ = conn.Close()
		return
	}

	rs.reg.Put(id, &registry.Entry{State: registry.Active})
	rs.logger.Info("recipient attached", "id", id, "resume_offset", resumeOffset)
	rs.pump(conn, dataRx, cancelTx)
}

// pump relays queued bytes to the recipient socket and watches the
// recipient's own socket for death, signalling cancelTx exactly once on any
// exit path so the sender side is never left blocked on a full queue.
func (rs *RecipientSession) pump(conn *wsproto.Conn, dataRx <-chan rendezvous.RelayMessage, cancelTx chan<- struct{}) {
	events := conn.ReadLoop()
	defer trySignal(cancelTx)

	for {
		select {
		case msg, ok := <-dataRx:
			if !ok {
				_ = conn.WriteJSON(wsproto.ServerToRecipient{Type: wsproto.TypeError, Error: "sender disconnected"})
				return
			}
			switch msg.Kind {
			case rendezvous.MsgData:
				if err := conn.WriteBinary(msg.Data); err != nil {
					return
				}
			case rendezvous.MsgFinished:
				_ = conn.WriteJSON(wsproto.ServerToRecipient{Type: wsproto.TypeDone})
				return
			case rendezvous.MsgError:
				_ = conn.WriteJSON(wsproto.ServerToRecipient{Type: wsproto.TypeError, Error: msg.Err})
				return
			}
		case ev, ok := <-events:
			if !ok || ev.Err != nil {
				return
			}
			// The recipient has nothing to say once attached; ignore any
			// stray frame instead of tearing the stream down over it.
		}
	}
}
