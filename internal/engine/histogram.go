package engine

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// HistogramPoint is the number of matching documents in one time bucket.
type HistogramPoint struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// Histogram counts documents matching q per interval-sized bucket of ingest
// time. Buckets without matches are omitted.
func (e *Engine) Histogram(ctx context.Context, q Query, interval time.Duration) ([]HistogramPoint, error) {
	defer observe("histogram", time.Now())

	if interval <= 0 {
		return nil, fmt.Errorf("histogram interval must be positive, got %v", interval)
	}
	if err := ValidateCollection(q.Collection); err != nil {
		return nil, err
	}
	pred, err := e.compileQuery(q)
	if err != nil {
		return nil, err
	}
	tr := q.timeRange()
	step := interval.Nanoseconds()
	buckets := make(map[int64]int)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if c, ok := e.collections[q.Collection]; ok {
		rows, err := c.Search(ctx, e.matcher, pred, tr, 0)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			buckets[(r.Timestamp/step)*step]++
		}
	}

	files, err := e.snapshotFiles(q.Collection)
	if err != nil {
		return nil, err
	}
	for _, sf := range files {
		if !tr.Overlaps(sf.MinTs, sf.MaxTs) {
			continue
		}
		rows, err := e.readerFunc(sf.Path, tr)
		if err != nil {
			e.logger.Warn("skipping unreadable snapshot", "file", sf.Path, "error", err)
			continue
		}
		matched, err := e.matcher.Match(ctx, pred, docsOf(rows))
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			if matched[i] {
				buckets[(r.Timestamp/step)*step]++
			}
		}
	}

	points := make([]HistogramPoint, 0, len(buckets))
	for t, c := range buckets {
		points = append(points, HistogramPoint{Time: t, Count: c})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})
	return points, nil
}
