// Package dataspace implements the remote dataset origins the alignment
// engine fetches meter timeseries from.
package dataspace

import (
	"context"
	"time"

	"github.com/openrec/lemd/core/align"
	"github.com/openrec/lemd/core/logger"
)

const (
	defaultMaxRetries = 10
	defaultTimeout    = 30 * time.Second
)

// fetchWindows splits [start, end) into sub-windows below the origin's record
// ceiling and fetches each with bounded retries. A sub-window that keeps
// failing degrades to empty instead of failing the whole span; only context
// cancellation aborts the fetch.
func fetchWindows(ctx context.Context, log logger.Logger, start, end time.Time, window time.Duration, maxRetries int, fetch func(ctx context.Context, ws, we time.Time) ([]align.RawSample, error)) ([]align.RawSample, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	var out []align.RawSample
	for ws := start; ws.Before(end); ws = ws.Add(window) {
		we := ws.Add(window)
		if we.After(end) {
			we = end
		}
		var samples []align.RawSample
		var err error
		for attempt := 1; attempt <= maxRetries; attempt++ {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			samples, err = fetch(ctx, ws, we)
			if err == nil {
				break
			}
			log.Debugf("window %s..%s attempt %d/%d failed: %v",
				ws.Format(time.RFC3339), we.Format(time.RFC3339), attempt, maxRetries, err)
		}
		if err != nil {
			log.Warnf("window %s..%s unavailable after %d attempts, continuing without it: %v",
				ws.Format(time.RFC3339), we.Format(time.RFC3339), maxRetries, err)
			continue
		}
		out = append(out, samples...)
	}
	return out, nil
}
