// Package cluster runs queries across several nanofilter nodes.
package cluster

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coffersTech/nanofilter/client"
	"golang.org/x/sync/errgroup"
)

// Aggregator scatters a query to every node and merges the answers. A node
// that is unreachable or fails with a server error is logged and skipped;
// a request error (4xx) is returned since every node would reject it.
type Aggregator struct {
	nodes  []*client.Client
	urls   []string
	logger *slog.Logger
}

// NewAggregator creates an aggregator over the given node URLs.
func NewAggregator(urls []string, token string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{urls: urls, logger: logger}
	for _, u := range urls {
		a.nodes = append(a.nodes, client.New(client.Options{ServerURL: u, Token: token}))
	}
	return a
}

// ErrNoNodes is returned when no node answered.
var ErrNoNodes = errors.New("cluster: no node answered")

// scatter calls fn on every node concurrently. collect is called for each
// answer, one at a time.
func (a *Aggregator) scatter(ctx context.Context, fn func(ctx context.Context, c *client.Client) (any, error), collect func(any)) error {
	var (
		mu       sync.Mutex
		answered int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, node := range a.nodes {
		g.Go(func() error {
			res, err := fn(gctx, node)
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
					return err
				}
				a.logger.Warn("node query failed", "node", a.urls[i], "error", err)
				return nil
			}
			mu.Lock()
			answered++
			collect(res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if answered == 0 && len(a.nodes) > 0 {
		return ErrNoNodes
	}
	return nil
}

// Find merges the newest-first answers of every node and keeps q.Limit rows.
func (a *Aggregator) Find(ctx context.Context, collection string, q client.Query) ([]client.Row, error) {
	var all []client.Row
	err := a.scatter(ctx, func(ctx context.Context, c *client.Client) (any, error) {
		return c.Find(ctx, collection, q)
	}, func(res any) {
		all = append(all, res.([]client.Row)...)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

// Count sums the per-node counts.
func (a *Aggregator) Count(ctx context.Context, collection string, q client.Query) (int64, error) {
	var total int64
	err := a.scatter(ctx, func(ctx context.Context, c *client.Client) (any, error) {
		return c.Count(ctx, collection, q)
	}, func(res any) {
		total += res.(int64)
	})
	return total, err
}

// Histogram adds up the buckets of every node.
func (a *Aggregator) Histogram(ctx context.Context, collection string, q client.Query, interval time.Duration) ([]client.HistogramPoint, error) {
	combined := make(map[int64]int)
	err := a.scatter(ctx, func(ctx context.Context, c *client.Client) (any, error) {
		return c.Histogram(ctx, collection, q, interval)
	}, func(res any) {
		for _, p := range res.([]client.HistogramPoint) {
			combined[p.Time] += p.Count
		}
	})
	if err != nil {
		return nil, err
	}

	result := make([]client.HistogramPoint, 0, len(combined))
	for t, c := range combined {
		result = append(result, client.HistogramPoint{Time: t, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time < result[j].Time
	})
	return result, nil
}
