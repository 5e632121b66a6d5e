// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package localshare

import (
	"context"
	"log/slog"
	"time"
)

// RunSweeper periodically drops unclaimed tokens past their TTL, mirroring
// the core relay's Cleaner (spec.md §4.5) for local-share's own token
// namespace. It runs until ctx is cancelled.
func RunSweeper(ctx context.Context, store *Store, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Info("localshare sweeper dropped expired tokens", "count", n)
			}
		}
	}
}
