package engine

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coffersTech/nanofilter/filter"
)

// PersistentStats holds cumulative flush statistics that survive restarts.
type PersistentStats struct {
	TotalDocs        int64            `json:"total_docs"`
	TotalBytes       int64            `json:"total_bytes"`
	Flushes          int64            `json:"flushes"`
	CollectionCounts map[string]int64 `json:"collection_counts"` // collection -> documents flushed
}

// CollectionStats describes one collection.
type CollectionStats struct {
	InMemory  int   `json:"in_memory"`
	Persisted int64 `json:"persisted"`
	Snapshots int   `json:"snapshots"`
}

// SystemStats contains high-level system metrics for API response.
type SystemStats struct {
	IngestionRate float64                    `json:"ingestion_rate"` // docs/sec
	TotalDocs     int64                      `json:"total_docs"`
	DiskUsage     int64                      `json:"disk_usage"` // bytes
	Flushes       int64                      `json:"flushes"`
	Collections   map[string]CollectionStats `json:"collections"`
	Cache         filter.CacheStats          `json:"cache"`
	BusyWorkers   int                        `json:"busy_workers"`
}

const statsFileName = ".nanofilter.stats"

// loadPersistentStats reads stats from disk. A missing or corrupt file
// yields empty stats.
func loadPersistentStats(dataDir string) PersistentStats {
	stats := PersistentStats{CollectionCounts: make(map[string]int64)}

	data, err := os.ReadFile(filepath.Join(dataDir, statsFileName))
	if err != nil {
		return stats
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return PersistentStats{CollectionCounts: make(map[string]int64)}
	}
	if stats.CollectionCounts == nil {
		stats.CollectionCounts = make(map[string]int64)
	}
	return stats
}

// savePersistentStats writes stats to disk atomically.
func savePersistentStats(dataDir string, stats PersistentStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, statsFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Stats merges persisted counters with the in-memory tables.
func (e *Engine) Stats() SystemStats {
	stats := SystemStats{
		IngestionRate: e.IngestionRate(),
		Collections:   make(map[string]CollectionStats),
		Cache:         e.cache.Stats(),
		BusyWorkers:   e.matcher.Running(),
	}

	e.statsLock.RLock()
	stats.TotalDocs = e.globalStats.TotalDocs
	stats.Flushes = e.globalStats.Flushes
	for name, n := range e.globalStats.CollectionCounts {
		cs := stats.Collections[name]
		cs.Persisted = n
		stats.Collections[name] = cs
	}
	e.statsLock.RUnlock()

	e.mu.RLock()
	for name, c := range e.collections {
		n := c.Len()
		if n == 0 {
			continue
		}
		cs := stats.Collections[name]
		cs.InMemory = n
		stats.Collections[name] = cs
		stats.TotalDocs += int64(n)
	}
	e.mu.RUnlock()

	if files, err := e.snapshotFiles(""); err == nil {
		for _, sf := range files {
			cs := stats.Collections[sf.Collection]
			cs.Snapshots++
			stats.Collections[sf.Collection] = cs
		}
	}

	var size int64
	_ = filepath.Walk(e.dataDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && !strings.HasSuffix(path, ".tmp") {
			size += info.Size()
		}
		return nil
	})
	stats.DiskUsage = size

	return stats
}

// StartStatsTicker computes the ingestion rate every interval until ctx is done.
func (e *Engine) StartStatsTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count := e.writeCounter.Swap(0)
				rate := float64(count) / interval.Seconds()
				e.currentRate.Store(math.Float64bits(rate))
			}
		}
	}()
}

// IngestionRate returns the last computed ingestion rate (docs/sec).
func (e *Engine) IngestionRate() float64 {
	return math.Float64frombits(e.currentRate.Load())
}
