// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const (
	// chunkShardFanout bounds how many shard directories a single sharding
	// level creates; globalSeq%chunkShardFanout picks the level-1 shard.
	chunkShardFanout = 256

	defaultPendingMemLimit int64 = 8 * 1024 * 1024
	maxChunkLength               = 32 * 1024 * 1024
)

// pendingChunk is a chunk received out of order: held in memory (data) once
// the in-memory budget allows it, or spilled to its shard file (filePath).
type pendingChunk struct {
	data     []byte
	filePath string
}

// Assembler reassembles a staged file from chunks that may arrive out of
// order, writing in-order chunks straight through and holding the rest in
// a capped in-memory buffer that spills to sharded disk files once that
// budget is exhausted.
type Assembler struct {
	outPath  string
	outFile  *os.File
	outBuf   *bufio.Writer
	hasher   hash.Hash
	chunkDir string

	shardLevels     int
	pendingMemLimit int64
	createdShards   map[string]struct{}

	mu            sync.Mutex
	pendingChunks map[uint32]pendingChunk

	nextExpectedSeq atomic.Uint32
	pendingMemBytes atomic.Int64
	pendingCount    atomic.Int32
	totalBytes      atomic.Int64
	finalized       atomic.Bool
	checksum        [32]byte

	logger *slog.Logger
}

// NewAssembler opens outPath for incremental writes and prepares chunkDir
// for out-of-order spill. shardLevels of 0 defaults to 1; pendingMemLimit
// of 0 defaults to 8MiB.
func NewAssembler(outPath, chunkDir string, shardLevels int, pendingMemLimit int64, logger *slog.Logger) (*Assembler, error) {
	if shardLevels == 0 {
		shardLevels = 1
	}
	if shardLevels < 1 || shardLevels > 2 {
		return nil, fmt.Errorf("invalid shard levels %d (must be 1 or 2)", shardLevels)
	}
	if pendingMemLimit <= 0 {
		pendingMemLimit = defaultPendingMemLimit
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	outFile, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}

	hasher := sha256.New()
	a := &Assembler{
		outPath:         outPath,
		outFile:         outFile,
		outBuf:          bufio.NewWriterSize(io.MultiWriter(outFile, hasher), 1024*1024),
		hasher:          hasher,
		chunkDir:        chunkDir,
		shardLevels:     shardLevels,
		pendingMemLimit: pendingMemLimit,
		createdShards:   make(map[string]struct{}),
		pendingChunks:   make(map[uint32]pendingChunk),
		logger:          logger,
	}
	return a, nil
}

// WriteChunk accepts one chunk at globalSeq. Chunks at or ahead of the next
// expected sequence are written or buffered; chunks behind it are ignored
// as duplicates, matching a retried HTTP upload.
func (a *Assembler) WriteChunk(globalSeq uint32, data []byte) error {
	if len(data) == 0 || len(data) > maxChunkLength {
		return fmt.Errorf("chunk seq %d has invalid length %d (max %d)", globalSeq, len(data), maxChunkLength)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	nextSeq := a.nextExpectedSeq.Load()
	switch {
	case globalSeq == nextSeq:
		n, err := a.outBuf.Write(data)
		if err != nil {
			return fmt.Errorf("writing chunk seq %d to output: %w", globalSeq, err)
		}
		a.totalBytes.Add(int64(n))
		a.nextExpectedSeq.Store(nextSeq + 1)
		return a.flushPending()

	case globalSeq < nextSeq:
		a.logger.Warn("ignoring duplicate/late chunk", "seq", globalSeq, "expected", nextSeq)
		return nil

	default:
		return a.saveOutOfOrder(globalSeq, data)
	}
}

// flushPending drains pending chunks that have become contiguous with
// nextExpectedSeq. Caller must hold a.mu.
func (a *Assembler) flushPending() error {
	for {
		nextSeq := a.nextExpectedSeq.Load()
		pc, ok := a.pendingChunks[nextSeq]
		if !ok {
			return nil
		}

		var n int64
		if pc.data != nil {
			written, err := a.outBuf.Write(pc.data)
			if err != nil {
				return fmt.Errorf("flushing pending chunk seq %d: %w", nextSeq, err)
			}
			n = int64(written)
			if rem := a.pendingMemBytes.Add(-int64(len(pc.data))); rem < 0 {
				a.pendingMemBytes.Store(0)
			}
		} else {
			f, err := os.Open(pc.filePath)
			if err != nil {
				return fmt.Errorf("opening pending chunk seq %d: %w", nextSeq, err)
			}
			n, err = io.Copy(a.outBuf, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("flushing pending chunk seq %d: %w", nextSeq, err)
			}
			os.Remove(pc.filePath)
		}

		a.totalBytes.Add(n)
		delete(a.pendingChunks, nextSeq)
		a.pendingCount.Add(-1)
		a.nextExpectedSeq.Store(nextSeq + 1)
	}
}

// saveOutOfOrder buffers a chunk that arrived ahead of nextExpectedSeq,
// in memory while pendingMemLimit allows it and on a sharded chunk file
// otherwise. Caller must hold a.mu.
func (a *Assembler) saveOutOfOrder(globalSeq uint32, data []byte) error {
	if _, exists := a.pendingChunks[globalSeq]; exists {
		a.logger.Warn("ignoring duplicate out-of-order chunk", "seq", globalSeq)
		return nil
	}

	if a.pendingMemBytes.Load()+int64(len(data)) <= a.pendingMemLimit {
		cp := append([]byte(nil), data...)
		a.pendingChunks[globalSeq] = pendingChunk{data: cp}
		a.pendingCount.Add(1)
		a.pendingMemBytes.Add(int64(len(cp)))
		return nil
	}

	path, err := a.chunkPath(globalSeq)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("spilling chunk seq %d to disk: %w", globalSeq, err)
	}
	a.pendingChunks[globalSeq] = pendingChunk{filePath: path}
	a.pendingCount.Add(1)
	return nil
}

// chunkPath returns the shard path for globalSeq, creating the shard
// directory on first use. Caller must hold a.mu.
func (a *Assembler) chunkPath(globalSeq uint32) (string, error) {
	level1 := fmt.Sprintf("%02x", globalSeq%chunkShardFanout)
	shardDir := filepath.Join(a.chunkDir, level1)
	if a.shardLevels == 2 {
		level2 := fmt.Sprintf("%02x", (globalSeq/chunkShardFanout)%chunkShardFanout)
		shardDir = filepath.Join(shardDir, level2)
	}

	if _, ok := a.createdShards[shardDir]; !ok {
		if err := os.MkdirAll(shardDir, 0755); err != nil {
			return "", fmt.Errorf("creating chunk shard directory: %w", err)
		}
		a.createdShards[shardDir] = struct{}{}
	}
	return filepath.Join(shardDir, fmt.Sprintf("chunk_%010d.tmp", globalSeq)), nil
}

// Finalize flushes and closes the output file, returning the number of
// out-of-order chunks still held behind a gap (0 when none are pending; a
// trailing chunk that never arrived is not counted), the SHA-256 of the
// bytes written so far, and their total length.
func (a *Assembler) Finalize() (missing int, checksum [32]byte, totalBytes int64, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.outBuf.Flush(); err != nil {
		return 0, checksum, 0, fmt.Errorf("flushing output buffer: %w", err)
	}
	if err := a.outFile.Close(); err != nil {
		return 0, checksum, 0, fmt.Errorf("closing output file: %w", err)
	}
	copy(a.checksum[:], a.hasher.Sum(nil))
	a.finalized.Store(true)

	return int(a.pendingCount.Load()), a.checksum, a.totalBytes.Load(), nil
}

// Cleanup removes the output file and any chunk shards. Used when a
// staging entry expires or upload is abandoned.
func (a *Assembler) Cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.finalized.Load() {
		a.outFile.Close()
	}
	os.Remove(a.outPath)
	os.RemoveAll(a.chunkDir)
}

// ReceivedBytes reports bytes written to the output so far, including bytes
// still in the write buffer (excludes pending out-of-order chunks not yet
// contiguous).
func (a *Assembler) ReceivedBytes() int64 {
	return a.totalBytes.Load()
}
