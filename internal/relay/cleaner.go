// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dropvault/dropvault/internal/registry"
)

// RunCleaner sweeps reg on every tick, removing Done entries, until ctx is
// cancelled (spec.md §4.5). It is meant to run as a single long-lived
// goroutine alongside the relay's accept loop.
func RunCleaner(ctx context.Context, reg *registry.Registry, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := reg.Sweep(func(e *registry.Entry) bool { return e.State == registry.Done })
			if n > 0 {
				logger.Info("cleaner swept finished transfers", "count", n)
			}
		}
	}
}
