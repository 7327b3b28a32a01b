package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/coffersTech/nanofilter/internal/metrics"
)

// FlushCollection writes c to a snapshot file in dataDir using writerFn and
// returns its path. The table itself is left untouched.
// Filename format: <collection>_<MinTimestamp>_<MaxTimestamp>.nfs
func FlushCollection(c *Collection, dataDir string, writerFn SnapshotWriterFunc) (string, error) {
	if c.Len() == 0 {
		return "", nil
	}
	path := filepath.Join(dataDir, snapshotName(c.Name(), c.MinTimestamp(), c.MaxTimestamp()))
	if err := writerFn(path, c); err != nil {
		return "", err
	}
	return path, nil
}

// Flush writes every non-empty collection to a snapshot, then resets the
// tables and the WAL. If any write fails the snapshots written by this call
// are removed and memory and WAL are left as they were.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pending []*Collection
	for _, c := range e.collections {
		if c.Len() > 0 {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Name() < pending[j].Name() })

	start := time.Now()
	written := make([]string, 0, len(pending))
	for _, c := range pending {
		path, err := FlushCollection(c, e.dataDir, e.writerFunc)
		if err != nil {
			for _, p := range written {
				_ = os.Remove(p)
			}
			metrics.Flushes.WithLabelValues("error").Inc()
			return fmt.Errorf("flush %s: %w", c.Name(), err)
		}
		written = append(written, path)
	}

	var rows int
	e.statsLock.Lock()
	for _, c := range pending {
		n := c.Len()
		rows += n
		e.globalStats.TotalDocs += int64(n)
		e.globalStats.TotalBytes += c.SizeBytes()
		e.globalStats.CollectionCounts[c.Name()] += int64(n)
	}
	e.globalStats.Flushes++
	if err := savePersistentStats(e.dataDir, e.globalStats); err != nil {
		e.logger.Warn("stats persist failed", "error", err)
	}
	e.statsLock.Unlock()

	for _, c := range pending {
		c.Reset()
	}
	if err := e.wal.Reset(); err != nil {
		metrics.Flushes.WithLabelValues("error").Inc()
		return fmt.Errorf("wal reset: %w", err)
	}

	metrics.Flushes.WithLabelValues("ok").Inc()
	e.logger.Info("flushed to disk",
		"snapshots", len(written),
		"documents", rows,
		"duration", time.Since(start))
	return nil
}
