package engine

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/coffersTech/nanofilter/internal/metrics"
	"github.com/coffersTech/nanofilter/value"
	"github.com/panjf2000/ants/v2"
)

// DefaultShardSize is the number of documents one worker evaluates per task.
const DefaultShardSize = 2048

// Matcher evaluates a predicate over document batches on a bounded worker
// pool. Batches no larger than one shard are evaluated on the caller's
// goroutine.
type Matcher struct {
	pool      *ants.Pool
	shardSize int
}

// NewMatcher creates a matcher with the given number of workers. Non-positive
// values select GOMAXPROCS workers and DefaultShardSize.
func NewMatcher(workers, shardSize int, logger *slog.Logger) (*Matcher, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		logger.Error("matcher worker panic", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	return &Matcher{pool: pool, shardSize: shardSize}, nil
}

// Match reports, for each document, whether pred matches it. The result is
// index-aligned with docs. Cancelling ctx stops scheduling further shards.
func (m *Matcher) Match(ctx context.Context, pred *filter.Predicate, docs []value.Value) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]bool, len(docs))
	metrics.DocumentsScanned.Add(float64(len(docs)))

	if len(docs) <= m.shardSize {
		for i, d := range docs {
			out[i] = pred.Match(d)
		}
		return out, nil
	}

	var wg sync.WaitGroup
	for start := 0; start < len(docs); start += m.shardSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+m.shardSize, len(docs))
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = pred.Match(docs[i])
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Running returns the number of busy workers.
func (m *Matcher) Running() int {
	return m.pool.Running()
}

// Release stops the pool, waiting briefly for running tasks.
func (m *Matcher) Release() {
	_ = m.pool.ReleaseTimeout(3 * time.Second)
}
