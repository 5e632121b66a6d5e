// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropvault/dropvault/internal/idgen"
)

// Server wires the chunk-to-disk staging collaborator onto chi routes: a
// sender may POST a file's chunks ahead of any recipient, and a recipient
// later fetches it over plain HTTP.
type Server struct {
	store      *Store
	gate       *DiskGate
	archiver   *Archiver
	shard      int
	pendingMem int64
	retention  time.Duration
	logger     *slog.Logger
}

// HTTPConfig bundles the tuning a staging Server needs beyond its Store.
type HTTPConfig struct {
	ShardLevels     int
	PendingMemLimit int64
	Retention       time.Duration
}

// NewServer builds a staging Server. archiver may be nil when no S3
// archival backend is configured; when set, a completed entry is uploaded
// to it immediately after checksum verification succeeds (SPEC_FULL.md
// §10), not deferred to the expiry sweep.
func NewServer(store *Store, gate *DiskGate, archiver *Archiver, cfg HTTPConfig, logger *slog.Logger) *Server {
	return &Server{
		store:      store,
		gate:       gate,
		archiver:   archiver,
		shard:      cfg.ShardLevels,
		pendingMem: cfg.PendingMemLimit,
		retention:  cfg.Retention,
		logger:     logger,
	}
}

func (s *Server) Routes(r chi.Router) {
	r.Post("/api/stage", s.handleCreate)
	r.Post("/api/stage/{id}", s.handleChunk)
	r.Post("/api/stage/{id}/complete", s.handleComplete)
	r.Get("/api/stage/{id}", s.handleMeta)
	r.Get("/api/stage/{id}/download", s.handleDownload)
}

type createRequest struct {
	Filename  string `json:"filename"`
	Size      uint64 `json:"size"`
	MimeType  string `json:"mime_type"`
	ChunkSize uint32 `json:"chunk_size"`
}

type createResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if s.gate != nil {
		if err := s.gate.Check(); err != nil {
			http.Error(w, err.Error(), http.StatusInsufficientStorage)
			return
		}
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Filename == "" || req.ChunkSize == 0 {
		http.Error(w, "filename and chunk_size are required", http.StatusBadRequest)
		return
	}

	id, err := s.mintID()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	m, err := s.store.Create(id, req.Filename, req.Size, req.MimeType, req.ChunkSize, s.shard, s.pendingMem, s.retention)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Info("staging entry created", "id", m.ID, "filename", m.Filename, "size", m.Size)
	writeJSON(w, http.StatusCreated, createResponse{ID: m.ID})
}

func (s *Server) mintID() (string, error) {
	for i := 0; i < 5; i++ {
		id, err := idgen.New()
		if err != nil {
			return "", err
		}
		if _, err := s.store.Manifest(id); err != nil {
			return id, nil
		}
	}
	return idgen.New()
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	seqStr := r.Header.Get("X-Chunk-Seq")
	seq, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		http.Error(w, "missing or invalid X-Chunk-Seq header", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading chunk body", http.StatusBadRequest)
		return
	}

	if err := s.store.WriteChunk(id, uint32(seq), data); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "staging entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	ChecksumSHA256 string `json:"checksum_sha256"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.ChecksumSHA256 == "" {
		http.Error(w, "checksum_sha256 is required", http.StatusBadRequest)
		return
	}

	m, err := s.store.Complete(id, req.ChecksumSHA256)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "staging entry not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.logger.Info("staging entry completed", "id", m.ID, "checksum", m.ChecksumSHA256)

	if s.archiver != nil {
		if err := s.archiver.Archive(r.Context(), id, s.store.OutputPath(id)); err != nil {
			s.logger.Warn("archiving completed staging entry", "id", id, "error", err)
		} else if err := s.store.PruneChunkShards(id); err != nil {
			s.logger.Warn("pruning chunk shards after archival", "id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := s.store.Manifest(id)
	if err != nil {
		http.Error(w, "staging entry not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := s.store.Manifest(id)
	if err != nil {
		http.Error(w, "staging entry not found", http.StatusNotFound)
		return
	}
	if !m.Completed {
		http.Error(w, "staging entry not yet complete", http.StatusConflict)
		return
	}

	f, err := os.Open(s.store.OutputPath(id))
	if err != nil {
		http.Error(w, "staged file unavailable", http.StatusGone)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "staged file unavailable", http.StatusInternalServerError)
		return
	}

	if m.MimeType != "" {
		w.Header().Set("Content-Type", m.MimeType)
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+m.Filename+`"`)
	http.ServeContent(w, r, m.Filename, info.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
