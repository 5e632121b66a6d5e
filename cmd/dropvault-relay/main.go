// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropvault/dropvault/internal/config"
	"github.com/dropvault/dropvault/internal/httpapi"
	"github.com/dropvault/dropvault/internal/localshare"
	"github.com/dropvault/dropvault/internal/logging"
	"github.com/dropvault/dropvault/internal/pki"
	"github.com/dropvault/dropvault/internal/registry"
	"github.com/dropvault/dropvault/internal/relay"
	"github.com/dropvault/dropvault/internal/staging"
)

func main() {
	configPath := flag.String("config", "/etc/dropvault/relay.yaml", "path to relay config file")
	flag.Parse()

	cfg, err := config.LoadRelayConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("relay error", "error", err)
		os.Exit(1)
	}
}

// run wires the core relay and its collaborator modes onto one chi router
// and serves it until ctx is cancelled.
func run(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) error {
	r := chi.NewRouter()

	reg := registry.New()
	relayCfg := relay.Config{
		KeepAliveInterval: cfg.Relay.KeepAliveInterval,
		ReconnectWindow:   cfg.Relay.ReconnectWindow,
		CleanerInterval:   cfg.Relay.CleanerInterval,
		MaxIDRetries:      cfg.Relay.MaxIDRetries,
	}
	httpapi.NewServer(reg, relayCfg, logger).Routes(r)
	go relay.RunCleaner(ctx, reg, relayCfg.CleanerInterval, logger)

	if cfg.Staging.Enabled {
		if err := wireStaging(ctx, r, cfg, logger); err != nil {
			return fmt.Errorf("wiring staging: %w", err)
		}
	}

	if cfg.LocalShare.Enabled {
		store := localshare.NewStore()
		localshare.NewServer(store, localshare.Config{
			ChunkSize:         cfg.LocalShare.ChunkSize,
			BandwidthLimitBps: cfg.LocalShare.BandwidthLimitBps,
		}, logger).Routes(r)
		go localshare.RunSweeper(ctx, store, cfg.LocalShare.SweepInterval, logger)
	}

	srv := &http.Server{Addr: cfg.Listen, Handler: r}
	if cfg.TLS.Enabled {
		tlsCfg, err := pki.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.ClientCAFile)
		if err != nil {
			return fmt.Errorf("building TLS config: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", cfg.Listen, "tls", cfg.TLS.Enabled)
		var err error
		if cfg.TLS.Enabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// wireStaging builds the chunk-to-disk collaborator's store, disk-space
// gate, optional S3 archiver, and cron sweeper, and mounts its HTTP routes.
func wireStaging(ctx context.Context, r chi.Router, cfg *config.RelayConfig, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.Staging.Dir, 0755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}

	store := staging.NewStore(cfg.Staging.Dir, logger)
	gate := staging.NewDiskGate(cfg.Staging.Dir, cfg.Staging.DiskFreeFloorRaw, logger)

	var archiver *staging.Archiver
	if s3cfg := cfg.Staging.Archive.S3; s3cfg != nil {
		a, err := staging.NewArchiver(ctx, s3cfg.Bucket, s3cfg.Region, s3cfg.Prefix, s3cfg.Endpoint, s3cfg.AccessKeyID, s3cfg.SecretAccessKey, cfg.Staging.Compression, logger)
		if err != nil {
			return fmt.Errorf("building staging archiver: %w", err)
		}
		archiver = a
	}

	sweeper, err := staging.NewSweeper(cfg.Staging.SweepSchedule, store, logger)
	if err != nil {
		return fmt.Errorf("scheduling staging sweeper: %w", err)
	}
	sweeper.Start()
	go func() {
		<-ctx.Done()
		sweeper.Stop(context.Background())
	}()

	staging.NewServer(store, gate, archiver, staging.HTTPConfig{
		ShardLevels:     cfg.Staging.ChunkShardLevels,
		PendingMemLimit: cfg.Staging.PendingMemRaw,
		Retention:       cfg.Staging.Retention,
	}, logger).Routes(r)

	return nil
}
