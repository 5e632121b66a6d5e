// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates the relay's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RelayConfig is the complete configuration of a dropvault-relay process.
type RelayConfig struct {
	Listen     string           `yaml:"listen"`
	TLS        TLSConfig        `yaml:"tls"`
	Logging    LoggingInfo      `yaml:"logging"`
	Relay      RelayTuning      `yaml:"relay"`
	Staging    StagingConfig    `yaml:"staging"`
	LocalShare LocalShareConfig `yaml:"local_share"`
}

// TLSConfig configures the relay's optional server-side TLS termination.
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	ClientCAFile string `yaml:"client_ca_file"` // optional: enables mTLS when set
}

// LoggingInfo mirrors the teacher's logging block: level/format/file drive
// logging.NewLogger. session_log_dir is parsed into SessionLogDir, but the
// relay process does not read it and never calls logging.NewSessionLogger,
// so no per-transfer log file is written.
type LoggingInfo struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	File          string `yaml:"file"`
	SessionLogDir string `yaml:"session_log_dir"`
}

// RelayTuning exposes the core relay's timers so tests and unusual
// deployments can override spec.md's literal defaults.
type RelayTuning struct {
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	ReconnectWindow   time.Duration `yaml:"reconnect_window"`
	CleanerInterval   time.Duration `yaml:"cleaner_interval"`
	MaxIDRetries      int           `yaml:"max_id_retries"`
}

// StagingConfig configures the chunk-to-disk collaborator mode.
type StagingConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Dir              string        `yaml:"dir"`
	DiskFreeFloor    string        `yaml:"disk_free_floor"` // e.g. "512mb"
	DiskFreeFloorRaw int64         `yaml:"-"`
	ChunkShardLevels int           `yaml:"chunk_shard_levels"` // 1|2, default 1
	PendingMemLimit  string        `yaml:"pending_mem_limit"`  // default "8mb"
	PendingMemRaw    int64         `yaml:"-"`
	Retention        time.Duration `yaml:"retention"`      // default manifest expiry window, default 72h
	SweepSchedule    string        `yaml:"sweep_schedule"` // cron expression, default "*/5 * * * *"
	Compression      string       `yaml:"compression"`    // none|zstd, default none
	Archive          ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig names the optional archival backends a completed staging
// entry may be copied to.
type ArchiveConfig struct {
	S3 *S3ArchiveConfig `yaml:"s3"`
}

// S3ArchiveConfig configures the optional upload of completed staging
// entries to S3-compatible object storage. AccessKeyID/SecretAccessKey are
// only needed for self-hosted S3-compatible backends outside the ambient
// AWS credential chain (instance profile, env vars, shared config); leave
// both empty to use the ambient chain.
type S3ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LocalShareConfig configures the local-share collaborator mode.
type LocalShareConfig struct {
	Enabled           bool          `yaml:"enabled"`
	TokenTTL          time.Duration `yaml:"token_ttl"`           // default 10m
	ChunkSize         int           `yaml:"chunk_size"`          // plaintext bytes per sealed chunk, default 256KiB
	SweepInterval     time.Duration `yaml:"sweep_interval"`      // default 60s
	BandwidthLimitBps int64         `yaml:"bandwidth_limit_bps"` // optional per-session cap, 0 = unlimited
}

// LoadRelayConfig reads and validates the relay's YAML configuration file.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading relay config: %w", err)
	}

	var cfg RelayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing relay config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating relay config: %w", err)
	}

	return &cfg, nil
}

func (c *RelayConfig) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("tls.cert_file is required when tls.enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.key_file is required when tls.enabled")
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Relay.KeepAliveInterval <= 0 {
		c.Relay.KeepAliveInterval = 15 * time.Second
	}
	if c.Relay.ReconnectWindow <= 0 {
		c.Relay.ReconnectWindow = 30 * time.Second
	}
	if c.Relay.CleanerInterval <= 0 {
		c.Relay.CleanerInterval = 60 * time.Second
	}
	if c.Relay.MaxIDRetries <= 0 {
		c.Relay.MaxIDRetries = 5
	}

	if c.Staging.Enabled {
		if c.Staging.Dir == "" {
			return fmt.Errorf("staging.dir is required when staging.enabled")
		}
		if c.Staging.DiskFreeFloor == "" {
			c.Staging.DiskFreeFloor = "512mb"
		}
		parsed, err := ParseByteSize(c.Staging.DiskFreeFloor)
		if err != nil {
			return fmt.Errorf("staging.disk_free_floor: %w", err)
		}
		c.Staging.DiskFreeFloorRaw = parsed

		if c.Staging.ChunkShardLevels == 0 {
			c.Staging.ChunkShardLevels = 1
		}
		if c.Staging.ChunkShardLevels < 1 || c.Staging.ChunkShardLevels > 2 {
			return fmt.Errorf("staging.chunk_shard_levels must be 1 or 2, got %d", c.Staging.ChunkShardLevels)
		}

		if c.Staging.PendingMemLimit == "" {
			c.Staging.PendingMemLimit = "8mb"
		}
		pending, err := ParseByteSize(c.Staging.PendingMemLimit)
		if err != nil {
			return fmt.Errorf("staging.pending_mem_limit: %w", err)
		}
		c.Staging.PendingMemRaw = pending

		if c.Staging.Retention <= 0 {
			c.Staging.Retention = 72 * time.Hour
		}
		if c.Staging.SweepSchedule == "" {
			c.Staging.SweepSchedule = "*/5 * * * *"
		}
		if c.Staging.Compression == "" {
			c.Staging.Compression = "none"
		}
		c.Staging.Compression = strings.ToLower(strings.TrimSpace(c.Staging.Compression))
		if c.Staging.Compression != "none" && c.Staging.Compression != "zstd" {
			return fmt.Errorf("staging.compression must be none or zstd, got %q", c.Staging.Compression)
		}
		if c.Staging.Archive.S3 != nil && c.Staging.Archive.S3.Bucket == "" {
			return fmt.Errorf("staging.archive.s3.bucket is required when staging.archive.s3 is set")
		}
	}

	if c.LocalShare.Enabled {
		if c.LocalShare.TokenTTL <= 0 {
			c.LocalShare.TokenTTL = 10 * time.Minute
		}
		if c.LocalShare.ChunkSize <= 0 {
			c.LocalShare.ChunkSize = 256 * 1024
		}
		if c.LocalShare.SweepInterval <= 0 {
			c.LocalShare.SweepInterval = 60 * time.Second
		}
		if c.LocalShare.BandwidthLimitBps < 0 {
			return fmt.Errorf("local_share.bandwidth_limit_bps must not be negative")
		}
	}

	return nil
}

// ParseByteSize converts human-readable sizes like "256mb", "1gb" to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordered longest-suffix-first so "mb" never matches as "b".
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	return 0, fmt.Errorf("size %q has no recognized suffix (b, kb, mb, gb)", s)
}
