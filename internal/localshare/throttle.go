// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package localshare

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxBurstSize bounds a single throttled write so a large chunk is never
// released to the wire in one reservation; it is split and paced instead.
const maxBurstSize = 256 * 1024

// throttledWriter is an io.Writer with token-bucket rate limiting, used to
// cap a local-share session's outbound bandwidth when configured. A zero
// bytesPerSec disables throttling entirely.
type throttledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// newThrottledWriter wraps w with a rate limit of bytesPerSec. If
// bytesPerSec <= 0 it returns w unchanged.
func newThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &throttledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write paces p out in burst-sized pieces, blocking on the limiter between
// pieces so the average rate stays at or below the configured cap.
func (tw *throttledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}
		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
