// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// upload tracks one in-flight staging upload: the durable manifest plus the
// live assembler writing its chunks. Entries are held only while a process
// is up; a restart loses in-flight assembly state for uploads that have not
// called Complete, and WriteChunk and Complete report ErrNotFound for them
// afterwards.
type upload struct {
	manifest  *Manifest
	assembler *Assembler
}

// Store is the relay's view of staging entries: an in-memory index over
// durable, disk-backed manifests and chunk assemblers, one per staged
// transfer.
type Store struct {
	baseDir string
	logger  *slog.Logger

	mu      sync.Mutex
	uploads map[string]*upload
}

func NewStore(baseDir string, logger *slog.Logger) *Store {
	return &Store{
		baseDir: baseDir,
		logger:  logger,
		uploads: make(map[string]*upload),
	}
}

// Create mints a new staging entry for a declared file, writes its
// manifest, and opens a fresh assembler for its chunks.
func (s *Store) Create(id, filename string, size uint64, mimeType string, chunkSize uint32, shardLevels int, pendingMemLimit int64, retention time.Duration) (*Manifest, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk_size must be greater than zero")
	}
	chunkCount := uint32((size + uint64(chunkSize) - 1) / uint64(chunkSize))
	if size == 0 {
		chunkCount = 0
	}

	now := time.Now()
	m := &Manifest{
		ID:         id,
		Filename:   filename,
		Size:       size,
		MimeType:   mimeType,
		ChunkSize:  chunkSize,
		ChunkCount: chunkCount,
		CreatedAt:  now,
		ExpiresAt:  now.Add(retention),
	}
	if err := writeManifest(s.baseDir, m); err != nil {
		return nil, err
	}

	asm, err := NewAssembler(outputPath(s.baseDir, id), chunkShardDir(s.baseDir, id), shardLevels, pendingMemLimit, s.logger)
	if err != nil {
		removeEntry(s.baseDir, id)
		return nil, err
	}

	s.mu.Lock()
	s.uploads[id] = &upload{manifest: m, assembler: asm}
	s.mu.Unlock()

	return m, nil
}

// ErrNotFound is returned by WriteChunk and Complete when id has no upload
// in this process's in-memory index. Expiry is not checked here.
var ErrNotFound = fmt.Errorf("staging entry not found")

// Manifest returns the durable manifest for id, reading it from disk if
// this process did not create the entry (e.g. after a restart).
func (s *Store) Manifest(id string) (*Manifest, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	u, ok := s.uploads[id]
	s.mu.Unlock()
	if ok {
		return u.manifest, nil
	}
	return readManifest(s.baseDir, id)
}

// WriteChunk appends one chunk to the staging entry's assembler. The
// assembler must have been created in this process: chunk upload does not
// survive a restart mid-transfer.
func (s *Store) WriteChunk(id string, seq uint32, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	u, ok := s.uploads[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return u.assembler.WriteChunk(seq, data)
}

// Complete finalizes the staging entry's assembler, verifies every
// declared chunk arrived and that the assembled bytes hash to
// declaredChecksum (a hex-encoded SHA-256, per SPEC_FULL.md §10), and
// persists the completed manifest. A mismatch leaves the entry
// uncompleted: the sender must be told its upload is corrupt rather than
// have it silently served to a recipient.
func (s *Store) Complete(id, declaredChecksum string) (*Manifest, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	u, ok := s.uploads[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	missing, checksum, total, err := u.assembler.Finalize()
	if err != nil {
		return nil, err
	}
	if missing > 0 {
		return nil, fmt.Errorf("staging entry %s incomplete: %d chunk(s) never arrived in order", id, missing)
	}
	if uint64(total) != u.manifest.Size {
		return nil, fmt.Errorf("staging entry %s size mismatch: wrote %d bytes, declared %d", id, total, u.manifest.Size)
	}

	computed := fmt.Sprintf("%x", checksum)
	if declaredChecksum != computed {
		return nil, fmt.Errorf("staging entry %s checksum mismatch: declared %s, computed %s", id, declaredChecksum, computed)
	}

	u.manifest.Completed = true
	u.manifest.ChecksumSHA256 = computed
	if err := writeManifest(s.baseDir, u.manifest); err != nil {
		return nil, err
	}
	return u.manifest, nil
}

// PruneChunkShards removes a completed entry's out-of-order chunk shard
// directory without touching its manifest or assembled output file. Called
// once an archival upload of the assembled file confirms, so the staging
// volume does not keep paying for spill space that archival has already
// superseded (SPEC_FULL.md §10).
func (s *Store) PruneChunkShards(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return os.RemoveAll(chunkShardDir(s.baseDir, id))
}

// OutputPath returns the path of the assembled file for a completed entry.
func (s *Store) OutputPath(id string) string {
	return outputPath(s.baseDir, id)
}

// Remove deletes a staging entry's manifest, assembled file, and chunk
// shards, and drops it from the in-memory index.
func (s *Store) Remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	u, ok := s.uploads[id]
	delete(s.uploads, id)
	s.mu.Unlock()
	if ok && u.assembler != nil {
		u.assembler.Cleanup()
	}
	return removeEntry(s.baseDir, id)
}

// Expired lists staging entry IDs whose manifest has passed its
// expires_at, for the periodic sweep to remove.
func (s *Store) Expired(now time.Time) []string {
	entries, err := listEntryIDs(s.baseDir)
	if err != nil {
		s.logger.Warn("listing staging entries for sweep", "error", err)
		return nil
	}

	var expired []string
	for _, id := range entries {
		m, err := readManifest(s.baseDir, id)
		if err != nil {
			continue
		}
		if now.After(m.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	return expired
}
