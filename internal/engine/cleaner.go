package engine

import (
	"context"
	"os"
	"time"

	"github.com/coffersTech/nanofilter/internal/metrics"
)

// RunCleaner periodically removes snapshots older than the retention period
// until ctx is done. A non-positive retention keeps everything.
func (e *Engine) RunCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("cleaner started", "retention", e.retention, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.retention <= 0 {
				continue
			}
			e.PurgeExpired(time.Now())
		}
	}
}

// PurgeExpired deletes snapshots whose newest document is older than
// now minus the retention period and returns how many were removed.
func (e *Engine) PurgeExpired(now time.Time) int {
	if e.retention <= 0 {
		return 0
	}
	files, err := e.snapshotFiles("")
	if err != nil {
		e.logger.Error("cleaner: failed to list snapshots", "error", err)
		return 0
	}

	threshold := now.Add(-e.retention).UnixNano()
	removed := 0
	for _, sf := range files {
		if sf.MaxTs >= threshold {
			continue
		}
		if err := os.Remove(sf.Path); err != nil {
			e.logger.Error("cleaner: failed to delete snapshot", "file", sf.Path, "error", err)
			continue
		}
		removed++
		metrics.SnapshotsPurged.Inc()
		e.logger.Info("expired snapshot deleted", "file", sf.Path, "collection", sf.Collection)
	}
	return removed
}
