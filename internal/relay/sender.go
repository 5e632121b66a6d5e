// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dropvault/dropvault/internal/idgen"
	"github.com/dropvault/dropvault/internal/registry"
	"github.com/dropvault/dropvault/internal/rendezvous"
	"github.com/dropvault/dropvault/internal/wsproto"
)

// SenderSession drives one sender socket through its full lifecycle:
// INIT -> REGISTERED -> RELAYING -> (AWAITING_RECONNECT -> RELAYING)* -> END
// (spec.md §4.2). A single Run call owns the registry entry for this
// transfer id from the moment it is minted to the moment it is finally
// removed.
type SenderSession struct {
	reg    *registry.Registry
	cfg    Config
	logger *slog.Logger
}

// NewSenderSession builds a session bound to reg, sending protocol pings and
// enforcing reconnect timeouts on the intervals in cfg.
func NewSenderSession(reg *registry.Registry, cfg Config, logger *slog.Logger) *SenderSession {
	return &SenderSession{reg: reg, cfg: cfg, logger: logger}
}

// Run blocks until the transfer is finished, cancelled, or ctx is done. It
// never panics on a malformed or disconnecting peer; every failure path is
// reported over the socket (where still possible) before returning.
func (s *SenderSession) Run(ctx context.Context, conn *wsproto.Conn) {
	events := conn.ReadLoop()

	req, ok := s.awaitSendRequest(conn, events)
	if !ok {
		return
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = wsproto.DefaultMimeType
	}
	metadata := registry.Metadata{Filename: req.Filename, Size: req.Size, MimeType: mimeType}

	id, linkCh, giveUp, ok := s.register(metadata)
	if !ok {
		_ = conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypeError, Error: "could not allocate a transfer id"})
		return
	}
	if err := conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypeReady, ID: id}); err != nil {
		s.reg.Remove(id)
		close(giveUp)
		return
	}
	s.logger.Info("transfer registered", "id", id, "filename", metadata.Filename, "size", metadata.Size)

	link, state := s.awaitClaim(ctx, conn, events, linkCh, giveUp, 0)
	for {
		switch state {
		case stateClaimed:
			if link.ResumeOffset > 0 {
				if err := conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypeResume, Offset: link.ResumeOffset}); err != nil {
					s.reg.Remove(id)
					return
				}
			} else if err := conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypeStart}); err != nil {
				s.reg.Remove(id)
				return
			}

			outcome := runRelayPump(events, link.DataTx, link.CancelRx)
			switch outcome {
			case pumpFinished:
				s.logger.Info("transfer finished", "id", id)
				s.reg.Put(id, &registry.Entry{State: registry.Done})
				return
			case pumpSenderGone:
				s.reg.Remove(id)
				return
			case pumpRecipientGone:
				s.logger.Info("recipient disconnected mid-transfer", "id", id)
				nextLink, nextGiveUp := s.reenterReconnecting(id, metadata)
				_ = conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypePaused})
				link, state = s.awaitClaim(ctx, conn, events, nextLink, nextGiveUp, s.cfg.ReconnectWindow)
				continue
			}
		case stateSenderGone:
			s.reg.Remove(id)
			return
		case stateTimedOut:
			s.logger.Info("reconnect window expired, transfer cancelled", "id", id)
			s.reg.Remove(id)
			_ = conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypeCancelled, Error: "Recipient disconnected"})
			return
		case stateShutdown:
			s.reg.Remove(id)
			return
		}
	}
}

// awaitSendRequest reads the sender's first text frame and validates it.
// On malformed JSON or a missing filename it sends an error message; on a
// read failure or a non-text first frame it returns without a reply. Either
// way it reports ok == false and the caller does no further registry work.
func (s *SenderSession) awaitSendRequest(conn *wsproto.Conn, events <-chan wsproto.Inbound) (wsproto.SendRequest, bool) {
	ev, ok := <-events
	if !ok || ev.Err != nil || ev.Type != websocket.TextMessage {
		return wsproto.SendRequest{}, false
	}
	var req wsproto.SendRequest
	if err := json.Unmarshal(ev.Data, &req); err != nil {
		_ = conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypeError, Error: "malformed send request: " + err.Error()})
		return wsproto.SendRequest{}, false
	}
	if req.Filename == "" {
		_ = conn.WriteJSON(wsproto.ServerToSender{Type: wsproto.TypeError, Error: "filename is required"})
		return wsproto.SendRequest{}, false
	}
	return req, true
}

// register mints a transfer id and inserts a fresh WaitingForRecipient entry
// under it, minting a fresh id on a collision and making at most
// cfg.MaxIDRetries attempts in total.
func (s *SenderSession) register(metadata registry.Metadata) (id string, linkCh chan rendezvous.Link, giveUp chan struct{}, ok bool) {
	for attempt := 0; attempt < s.cfg.MaxIDRetries; attempt++ {
		candidate, err := idgen.New()
		if err != nil {
			continue
		}
		linkCh = make(chan rendezvous.Link, 1)
		giveUp = make(chan struct{})
		entry := &registry.Entry{State: registry.WaitingForRecipient, Metadata: metadata, LinkTx: linkCh, GiveUp: giveUp}
		if s.reg.InsertUnique(candidate, entry) {
			return candidate, linkCh, giveUp, true
		}
	}
	return "", nil, nil, false
}

// reenterReconnecting re-publishes the entry as Reconnecting with a fresh
// one-shot pair after a recipient has dropped mid-transfer, so a later
// claim sees a clean Link/GiveUp to race against.
func (s *SenderSession) reenterReconnecting(id string, metadata registry.Metadata) (chan rendezvous.Link, chan struct{}) {
	linkCh := make(chan rendezvous.Link, 1)
	giveUp := make(chan struct{})
	s.reg.Put(id, &registry.Entry{State: registry.Reconnecting, Metadata: metadata, LinkTx: linkCh, GiveUp: giveUp})
	return linkCh, giveUp
}

type waitState int

const (
	stateClaimed waitState = iota
	stateSenderGone
	stateTimedOut
	stateShutdown
)

// awaitClaim implements the REGISTERED/AWAITING_RECONNECT half of §4.2: it
// pings on cfg.KeepAliveInterval, watches the sender socket for death, and
// (when window > 0) enforces an absolute reconnect deadline, until a
// recipient publishes a Link on linkCh.
func (s *SenderSession) awaitClaim(ctx context.Context, conn *wsproto.Conn, events <-chan wsproto.Inbound, linkCh <-chan rendezvous.Link, giveUp chan struct{}, window time.Duration) (rendezvous.Link, waitState) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case link := <-linkCh:
			return link, stateClaimed
		case ev, ok := <-events:
			if !ok || ev.Err != nil {
				close(giveUp)
				return rendezvous.Link{}, stateSenderGone
			}
			// Any frame other than the initial SendRequest is unexpected
			// while waiting for a claim; ignore it.
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				close(giveUp)
				return rendezvous.Link{}, stateSenderGone
			}
		case <-deadline:
			close(giveUp)
			return rendezvous.Link{}, stateTimedOut
		case <-ctx.Done():
			close(giveUp)
			return rendezvous.Link{}, stateShutdown
		}
	}
}
