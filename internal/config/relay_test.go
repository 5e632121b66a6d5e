// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRelayConfig_ExampleFile(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "configs", "relay.example.yaml")
	cfg, err := LoadRelayConfig(cfgPath)
	if err != nil {
		t.Fatalf("failed to load relay example config: %v", err)
	}

	if cfg.Listen != "0.0.0.0:9847" {
		t.Errorf("expected listen '0.0.0.0:9847', got %q", cfg.Listen)
	}
	if !cfg.TLS.Enabled {
		t.Error("expected tls.enabled to be true")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging level 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Relay.KeepAliveInterval != 15*time.Second {
		t.Errorf("expected keepalive_interval 15s, got %v", cfg.Relay.KeepAliveInterval)
	}
	if !cfg.Staging.Enabled {
		t.Error("expected staging.enabled to be true")
	}
	if cfg.Staging.DiskFreeFloorRaw != 512*1024*1024 {
		t.Errorf("expected disk_free_floor_raw 512mb, got %d", cfg.Staging.DiskFreeFloorRaw)
	}
	if cfg.Staging.Archive.S3 == nil || cfg.Staging.Archive.S3.Bucket != "dropvault-archive" {
		t.Errorf("expected s3 archive bucket 'dropvault-archive', got %+v", cfg.Staging.Archive.S3)
	}
	if !cfg.LocalShare.Enabled {
		t.Error("expected local_share.enabled to be true")
	}
}

func TestLoadRelayConfig_MissingListen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("tls:\n  enabled: false\n"), 0644)

	if _, err := LoadRelayConfig(path); err == nil {
		t.Fatal("expected an error for a config missing listen")
	}
}

func TestLoadRelayConfig_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	os.WriteFile(path, []byte("listen: \"127.0.0.1:9847\"\n"), 0644)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging level/format, got %+v", cfg.Logging)
	}
	if cfg.Relay.KeepAliveInterval != 15*time.Second {
		t.Errorf("expected default keepalive interval, got %v", cfg.Relay.KeepAliveInterval)
	}
	if cfg.Relay.ReconnectWindow != 30*time.Second {
		t.Errorf("expected default reconnect window, got %v", cfg.Relay.ReconnectWindow)
	}
	if cfg.Relay.MaxIDRetries != 5 {
		t.Errorf("expected default max id retries 5, got %d", cfg.Relay.MaxIDRetries)
	}
}

func TestLoadRelayConfig_LocalShareDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ls.yaml")
	os.WriteFile(path, []byte("listen: \"127.0.0.1:9847\"\nlocal_share:\n  enabled: true\n"), 0644)

	cfg, err := LoadRelayConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LocalShare.TokenTTL != 10*time.Minute {
		t.Errorf("expected default token_ttl 10m, got %v", cfg.LocalShare.TokenTTL)
	}
	if cfg.LocalShare.ChunkSize != 256*1024 {
		t.Errorf("expected default chunk_size 256KiB, got %d", cfg.LocalShare.ChunkSize)
	}
	if cfg.LocalShare.SweepInterval != 60*time.Second {
		t.Errorf("expected default sweep_interval 60s, got %v", cfg.LocalShare.SweepInterval)
	}
}

func TestLoadRelayConfig_LocalShareNegativeBandwidthRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ls-bad.yaml")
	os.WriteFile(path, []byte("listen: \"127.0.0.1:9847\"\nlocal_share:\n  enabled: true\n  bandwidth_limit_bps: -1\n"), 0644)

	if _, err := LoadRelayConfig(path); err == nil {
		t.Fatal("expected an error for a negative bandwidth_limit_bps")
	}
}

func TestLoadRelayConfig_TLSEnabledRequiresCertFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.yaml")
	os.WriteFile(path, []byte("listen: \"127.0.0.1:9847\"\ntls:\n  enabled: true\n"), 0644)

	if _, err := LoadRelayConfig(path); err == nil {
		t.Fatal("expected an error when tls.enabled but cert_file/key_file are missing")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"1b":   1,
		"1kb":  1024,
		"8mb":  8 * 1024 * 1024,
		"1gb":  1024 * 1024 * 1024,
		"512mb": 512 * 1024 * 1024,
	}
	for input, want := range cases {
		got, err := ParseByteSize(input)
		if err != nil {
			t.Errorf("ParseByteSize(%q): %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseByteSize_InvalidSuffix(t *testing.T) {
	if _, err := ParseByteSize("5tb"); err == nil {
		t.Fatal("expected an error for an unrecognized suffix")
	}
}
