// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package localshare

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropvault/dropvault/internal/idgen"
	"github.com/dropvault/dropvault/internal/wsproto"
)

// Config tunes a local-share Server beyond its Store.
type Config struct {
	// ChunkSize is the plaintext size, in bytes, sealed into each outbound
	// frame (default 256 KiB, spec.md §11).
	ChunkSize int
	// BandwidthLimitBps optionally caps outbound bytes/sec per session. Zero
	// disables throttling.
	BandwidthLimitBps int64
}

// Server wires the local-share collaborator onto chi routes: the process
// streams a file it already has open on disk directly to a browser,
// sealing each chunk so the bytes are opaque on the wire (SPEC_FULL.md §11).
type Server struct {
	store  *Store
	cfg    Config
	logger *slog.Logger
}

// NewServer builds a local-share Server backed by store.
func NewServer(store *Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 256 * 1024
	}
	return &Server{store: store, cfg: cfg, logger: logger}
}

// Routes registers the local-share endpoint onto r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/api/localshare/{token}", s.handleShare)
}

// CreateShare mints a single-use token naming path, valid until ttl elapses.
// The caller (whatever component decided to share this specific file)
// supplies the metadata the browser will see in the share-ready message.
func (s *Server) CreateShare(path, filename string, size uint64, mimeType string, ttl time.Duration) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	token, err := idgen.New()
	if err != nil {
		return "", err
	}
	s.store.Put(token, path, filename, size, mimeType, ttl)
	return token, nil
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sh, ok := s.store.Take(token)
	if !ok {
		http.Error(w, "share not found or already claimed", http.StatusNotFound)
		return
	}

	f, err := os.Open(sh.path)
	if err != nil {
		http.Error(w, "share file unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	seal, err := newSealer()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := wsproto.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("localshare upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn := wsproto.NewConn(ws)
	defer conn.Close()

	if err := conn.WriteJSON(ShareReady{
		Type:      TypeShareReady,
		KeyB64:    base64.StdEncoding.EncodeToString(seal.key()),
		NonceSalt: base64.StdEncoding.EncodeToString(seal.salt[:]),
		Filename:  sh.filename,
		Size:      sh.size,
		MimeType:  sh.mimeType,
	}); err != nil {
		return
	}

	s.pump(r.Context(), conn, f, seal)
}

// pump reads the shared file in ChunkSize pieces, seals each, and writes it
// as a binary frame until EOF or the browser disconnects. There is no
// resume semantics: a dropped browser tears the share down, and a fresh
// request simply mints a new token (if the caller still wants to offer the
// file) starting the file back at offset 0.
func (s *Server) pump(ctx context.Context, conn *wsproto.Conn, f *os.File, seal *sealer) {
	events := conn.ReadLoop()
	cancel := make(chan struct{})
	go func() {
		for range events {
		}
		close(cancel)
	}()

	var out io.Writer = binaryWriter{conn}
	if s.cfg.BandwidthLimitBps > 0 {
		out = newThrottledWriter(ctx, out, s.cfg.BandwidthLimitBps)
	}

	buf := make([]byte, s.cfg.ChunkSize)
	for {
		select {
		case <-cancel:
			return
		default:
		}

		n, err := f.Read(buf)
		if n > 0 {
			sealed := seal.seal(buf[:n])
			if _, werr := out.Write(sealed); werr != nil {
				return
			}
		}
		if err == io.EOF {
			_ = conn.WriteJSON(Done{Type: TypeDone})
			return
		}
		if err != nil {
			_ = conn.WriteJSON(Error{Type: TypeError, Error: "error reading shared file"})
			return
		}
	}
}

// binaryWriter adapts wsproto.Conn's binary frame writer to io.Writer so it
// can sit behind the optional throttledWriter.
type binaryWriter struct {
	conn *wsproto.Conn
}

func (b binaryWriter) Write(p []byte) (int, error) {
	if err := b.conn.WriteBinary(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
