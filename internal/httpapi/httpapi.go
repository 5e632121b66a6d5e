// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package httpapi is the HTTP surface of the core relay (spec.md §6.2): a
// chi router supplying path-parameter extraction, websocket upgrade, and
// plain status-code responses. All protocol logic lives in internal/relay;
// this package only wires a transport to it.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropvault/dropvault/internal/registry"
	"github.com/dropvault/dropvault/internal/relay"
	"github.com/dropvault/dropvault/internal/wsproto"
)

// Server wires the core relay's websocket and metadata endpoints onto a
// chi.Router.
type Server struct {
	reg    *registry.Registry
	cfg    relay.Config
	logger *slog.Logger
}

// NewServer builds an httpapi.Server backed by reg.
func NewServer(reg *registry.Registry, cfg relay.Config, logger *slog.Logger) *Server {
	return &Server{reg: reg, cfg: cfg, logger: logger}
}

// Routes registers the core relay's endpoints onto r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/api/transfer/{id}", s.handleTransferMeta)
	r.Get("/ws/send", s.handleSend)
	r.Get("/ws/recv/{id}", s.handleRecv)
}

// handleTransferMeta implements spec.md §6.2: 200 with metadata while a
// transfer is waiting for a recipient, 410 once it has moved past that
// state, 404 when the id is unknown.
func (s *Server) handleTransferMeta(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.reg.Peek(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if entry.State != registry.WaitingForRecipient {
		w.WriteHeader(http.StatusGone)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Filename string `json:"filename"`
		Size     uint64 `json:"size"`
		MimeType string `json:"mime_type"`
	}{entry.Metadata.Filename, entry.Metadata.Size, entry.Metadata.MimeType})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	ws, err := wsproto.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("send upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn := wsproto.NewConn(ws)
	defer conn.Close()
	relay.NewSenderSession(s.reg, s.cfg, s.logger).Run(r.Context(), conn)
}

func (s *Server) handleRecv(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var resumeOffset uint64
	if v := r.URL.Query().Get("resume_offset"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid resume_offset", http.StatusBadRequest)
			return
		}
		resumeOffset = parsed
	}

	ws, err := wsproto.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("recv upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn := wsproto.NewConn(ws)
	defer conn.Close()
	relay.NewRecipientSession(s.reg, s.logger).Run(id, resumeOffset, conn)
}
