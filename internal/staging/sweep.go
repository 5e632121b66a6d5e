// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs a cron-scheduled pass that removes expired staging entries.
// Archival (when configured) already happened at completion time
// (SPEC_FULL.md §10); the sweep only ever deletes the local copy and
// leaves any archived S3 object alone.
type Sweeper struct {
	cron   *cron.Cron
	store  *Store
	logger *slog.Logger
}

// NewSweeper schedules a sweep of expired staging entries per schedule
// (a standard cron expression, e.g. "*/5 * * * *").
func NewSweeper(schedule string, store *Store, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{store: store, logger: logger}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("scheduling staging sweep %q: %w", schedule, err)
	}
	s.cron = c
	return s, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

func (s *Sweeper) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		s.logger.Warn("staging sweeper stop timed out")
	}
}

func (s *Sweeper) sweep() {
	expired := s.store.Expired(time.Now())
	if len(expired) == 0 {
		return
	}

	for _, id := range expired {
		if err := s.store.Remove(id); err != nil {
			s.logger.Warn("removing expired staging entry", "id", id, "error", err)
			continue
		}
		s.logger.Info("removed expired staging entry", "id", id)
	}
}
