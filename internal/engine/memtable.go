package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/coffersTech/nanofilter/value"
	"github.com/google/uuid"
)

const initialCapacity = 4096

// Collection is the in-memory table of one named collection. Rows are kept
// in columnar form in ingest order; columns are exported for the storage
// package.
type Collection struct {
	name string
	mu   sync.RWMutex

	IDCol  []string
	TsCol  []int64
	DocCol []value.Value

	sizeBytes atomic.Int64
	lastTs    int64
}

// NewCollection initializes an empty collection table.
func NewCollection(name string) *Collection {
	c := &Collection{name: name}
	c.alloc()
	return c
}

func (c *Collection) alloc() {
	c.IDCol = make([]string, 0, initialCapacity)
	c.TsCol = make([]int64, 0, initialCapacity)
	c.DocCol = make([]value.Value, 0, initialCapacity)
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Insert appends doc with a fresh id and the current time and returns the row.
func (c *Collection) Insert(doc value.Value) Row {
	return c.Append(uuid.NewString(), time.Now().UnixNano(), doc)
}

// Append adds a row. Timestamps are forced to be strictly increasing within
// a collection so that snapshot time ranges never overlap.
func (c *Collection) Append(id string, ts int64, doc value.Value) Row {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts <= c.lastTs {
		ts = c.lastTs + 1
	}
	c.lastTs = ts

	c.IDCol = append(c.IDCol, id)
	c.TsCol = append(c.TsCol, ts)
	c.DocCol = append(c.DocCol, doc)
	c.sizeBytes.Add(int64(len(id)+8) + approxSize(doc))

	return Row{ID: id, Timestamp: ts, Doc: doc}
}

// SizeBytes returns the estimated memory usage in bytes.
func (c *Collection) SizeBytes() int64 {
	return c.sizeBytes.Load()
}

// Len returns the number of rows.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.TsCol)
}

// Reset drops all rows. Fresh columns are allocated so that views handed
// out earlier stay valid.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alloc()
	c.sizeBytes.Store(0)
}

// MinTimestamp returns the timestamp of the oldest row.
func (c *Collection) MinTimestamp() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.TsCol) == 0 {
		return 0
	}
	return c.TsCol[0]
}

// MaxTimestamp returns the timestamp of the newest row.
func (c *Collection) MaxTimestamp() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.TsCol) == 0 {
		return 0
	}
	return c.TsCol[len(c.TsCol)-1]
}

// Rows returns a copy of all rows in ingest order.
func (c *Collection) Rows() []Row {
	ids, ts, docs := c.view()
	rows := make([]Row, len(ids))
	for i := range ids {
		rows[i] = Row{ID: ids[i], Timestamp: ts[i], Doc: docs[i]}
	}
	return rows
}

// view returns the current columns. Appends never touch the returned prefix
// and Reset swaps in new backing arrays, so the slices may be read without
// holding the lock.
func (c *Collection) view() ([]string, []int64, []value.Value) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.TsCol)
	return c.IDCol[:n:n], c.TsCol[:n:n], c.DocCol[:n:n]
}

// Search returns up to limit rows matching pred inside tr, newest first.
// A non-positive limit returns every match.
func (c *Collection) Search(ctx context.Context, m *Matcher, pred *filter.Predicate, tr TimeRange, limit int) ([]Row, error) {
	ids, ts, docs := c.view()

	lo, hi := 0, len(ts)
	for lo < hi && tr.MinTime > 0 && ts[lo] < tr.MinTime {
		lo++
	}
	for hi > lo && tr.MaxTime > 0 && ts[hi-1] > tr.MaxTime {
		hi--
	}

	matched, err := m.Match(ctx, pred, docs[lo:hi])
	if err != nil {
		return nil, err
	}

	var result []Row
	for i := hi - 1; i >= lo; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		if !matched[i-lo] {
			continue
		}
		result = append(result, Row{ID: ids[i], Timestamp: ts[i], Doc: docs[i]})
	}
	return result, nil
}

// approxSize estimates the in-memory footprint of v.
func approxSize(v value.Value) int64 {
	switch v.Kind() {
	case value.KindString:
		return int64(16 + len(v.AsString()))
	case value.KindArray:
		n := int64(24)
		for _, e := range v.Array() {
			n += approxSize(e)
		}
		return n
	case value.KindObject:
		n := int64(48)
		obj := v.Object()
		for i := 0; i < obj.Len(); i++ {
			k, e := obj.At(i)
			n += int64(16+len(k)) + approxSize(e)
		}
		return n
	default:
		return 16
	}
}
