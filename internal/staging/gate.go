// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskGate refuses new staged uploads once free space on the staging
// volume drops below a configured floor, so a large backlog of in-flight
// transfers cannot run the host out of disk.
type DiskGate struct {
	path   string
	floor  int64
	logger *slog.Logger
}

func NewDiskGate(path string, floorBytes int64, logger *slog.Logger) *DiskGate {
	return &DiskGate{path: path, floor: floorBytes, logger: logger}
}

// Check returns an error if free space on the staging volume is at or
// below the configured floor.
func (g *DiskGate) Check() error {
	usage, err := disk.Usage(g.path)
	if err != nil {
		g.logger.Warn("failed to collect disk usage for staging gate", "path", g.path, "error", err)
		return nil
	}
	if int64(usage.Free) <= g.floor {
		return fmt.Errorf("staging volume %s has %d bytes free, below the %d byte floor", g.path, usage.Free, g.floor)
	}
	return nil
}
