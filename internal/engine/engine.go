package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/coffersTech/nanofilter/internal/metrics"
	"github.com/coffersTech/nanofilter/value"
	"golang.org/x/sync/errgroup"
)

// SnapshotReaderFunc reads the rows of a snapshot file inside tr.
type SnapshotReaderFunc func(path string, tr TimeRange) ([]Row, error)

// SnapshotWriterFunc writes a collection table to a snapshot file.
type SnapshotWriterFunc func(path string, c *Collection) error

const (
	snapshotExt  = ".nfs"
	walFileName  = "wal.log"
	DefaultLimit = 100

	defaultMaxTableSize = 64 * 1024 * 1024
)

// Options configures an Engine.
type Options struct {
	DataDir      string
	Retention    time.Duration
	MaxTableSize int64 // flush when the in-memory tables exceed this many bytes
	FlushRows    int   // flush when the in-memory tables hold this many rows, 0 disables
	Workers      int
	ShardSize    int
	CacheSize    int
	Reader       SnapshotReaderFunc
	Writer       SnapshotWriterFunc
	Logger       *slog.Logger
}

// Engine stores documents per collection and answers filter queries over
// memory and persisted snapshots.
type Engine struct {
	dataDir    string
	readerFunc SnapshotReaderFunc
	writerFunc SnapshotWriterFunc
	retention  time.Duration
	maxSize    int64
	flushRows  int
	workers    int
	logger     *slog.Logger

	// mu guards the collections map and excludes flushes from queries
	mu          sync.RWMutex
	collections map[string]*Collection
	closed      bool

	cache   *filter.Cache
	matcher *Matcher
	wal     *WAL

	globalStats PersistentStats
	statsLock   sync.RWMutex

	flushing     atomic.Bool
	flushWG      sync.WaitGroup
	writeCounter atomic.Int64
	currentRate  atomic.Uint64 // float64 bits, docs/sec
}

// New opens an engine in opts.DataDir and replays its WAL.
func New(opts Options) (*Engine, error) {
	if opts.Reader == nil || opts.Writer == nil {
		return nil, fmt.Errorf("engine: snapshot reader and writer are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxTableSize <= 0 {
		opts.MaxTableSize = defaultMaxTableSize
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	matcher, err := NewMatcher(opts.Workers, opts.ShardSize, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: matcher pool: %w", err)
	}

	wal, err := OpenWAL(filepath.Join(opts.DataDir, walFileName))
	if err != nil {
		matcher.Release()
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	e := &Engine{
		dataDir:     opts.DataDir,
		readerFunc:  opts.Reader,
		writerFunc:  opts.Writer,
		retention:   opts.Retention,
		maxSize:     opts.MaxTableSize,
		flushRows:   opts.FlushRows,
		workers:     max(opts.Workers, 1),
		logger:      logger,
		collections: make(map[string]*Collection),
		cache:       filter.NewCache(opts.CacheSize),
		matcher:     matcher,
		wal:         wal,
		globalStats: loadPersistentStats(opts.DataDir),
	}

	// Crash recovery: entries go straight to the tables, not back to the WAL.
	entries, err := wal.Replay()
	if err != nil {
		logger.Warn("wal replay stopped early", "error", err, "recovered", len(entries))
	}
	if len(entries) > 0 {
		logger.Info("replaying wal", "documents", len(entries))
		for _, ent := range entries {
			e.collection(ent.Collection).Append(ent.Row.ID, ent.Row.Timestamp, ent.Row.Doc)
		}
	}

	return e, nil
}

// collection returns the named table, creating it. Callers must not hold mu.
func (e *Engine) collection(name string) *Collection {
	e.mu.RLock()
	c, ok := e.collections[name]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.collections[name]; ok {
		return c
	}
	c = NewCollection(name)
	e.collections[name] = c
	return c
}

// Ingest stores docs in the named collection and returns the rows assigned
// to them. Every document must be an object.
func (e *Engine) Ingest(collection string, docs []value.Value) ([]Row, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	for i, d := range docs {
		if d.Kind() != value.KindObject {
			return nil, fmt.Errorf("%w: document %d is %s", ErrInvalidDocument, i, d.Kind())
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	c := e.collection(collection)

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	rows := make([]Row, len(docs))
	for i, d := range docs {
		rows[i] = c.Insert(d)
	}
	// Same read lock as the inserts, so a flush cannot reset the WAL
	// between the two.
	err := e.wal.Write(collection, rows)
	e.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("engine: wal write: %w", err)
	}

	e.writeCounter.Add(int64(len(rows)))
	metrics.DocumentsIngested.WithLabelValues(collection).Add(float64(len(rows)))

	if e.needsFlush() && e.flushing.CompareAndSwap(false, true) {
		e.flushWG.Add(1)
		go func() {
			defer e.flushWG.Done()
			defer e.flushing.Store(false)
			if err := e.Flush(); err != nil {
				e.logger.Error("background flush failed", "error", err)
			}
		}()
	}
	return rows, nil
}

func (e *Engine) needsFlush() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var size int64
	var n int
	for _, c := range e.collections {
		size += c.SizeBytes()
		n += c.Len()
	}
	return size >= e.maxSize || (e.flushRows > 0 && n >= e.flushRows)
}

// SyncWAL flushes the WAL file to disk.
func (e *Engine) SyncWAL() error {
	return e.wal.Sync()
}

// Compile returns the cached predicate for a filter document.
func (e *Engine) Compile(spec value.Value) (*filter.Predicate, error) {
	pred, err := e.cache.CompileValue(spec)
	if err != nil {
		metrics.CompileErrors.WithLabelValues(string(filter.ErrorCodeOf(err))).Inc()
	}
	return pred, err
}

func (e *Engine) compileQuery(q Query) (*filter.Predicate, error) {
	spec, err := querySpec(q)
	if err != nil {
		return nil, err
	}
	return e.Compile(spec)
}

// Find returns up to q.Limit matching rows, newest first. Memory is scanned
// before snapshots and scanning stops once the limit is reached.
func (e *Engine) Find(ctx context.Context, q Query) ([]Row, error) {
	defer observe("find", time.Now())

	if err := ValidateCollection(q.Collection); err != nil {
		return nil, err
	}
	pred, err := e.compileQuery(q)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	tr := q.timeRange()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []Row
	if c, ok := e.collections[q.Collection]; ok {
		result, err = c.Search(ctx, e.matcher, pred, tr, limit)
		if err != nil {
			return nil, err
		}
	}
	if len(result) >= limit {
		return result, nil
	}

	files, err := e.snapshotFiles(q.Collection)
	if err != nil {
		return result, err
	}
	for _, sf := range files {
		if len(result) >= limit {
			break
		}
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
		for i := len(rows) - 1; i >= 0 && len(result) < limit; i-- {
			if matched[i] {
				result = append(result, rows[i])
			}
		}
	}
	return result, nil
}

// Count returns the number of documents matching q. Snapshots are read
// concurrently.
func (e *Engine) Count(ctx context.Context, q Query) (int64, error) {
	defer observe("count", time.Now())

	if err := ValidateCollection(q.Collection); err != nil {
		return 0, err
	}
	pred, err := e.compileQuery(q)
	if err != nil {
		return 0, err
	}
	tr := q.timeRange()

	e.mu.RLock()
	defer e.mu.RUnlock()

	var total atomic.Int64
	if c, ok := e.collections[q.Collection]; ok {
		rows, err := c.Search(ctx, e.matcher, pred, tr, 0)
		if err != nil {
			return 0, err
		}
		total.Add(int64(len(rows)))
	}

	files, err := e.snapshotFiles(q.Collection)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, sf := range files {
		if !tr.Overlaps(sf.MinTs, sf.MaxTs) {
			continue
		}
		g.Go(func() error {
			rows, err := e.readerFunc(sf.Path, tr)
			if err != nil {
				return fmt.Errorf("read %s: %w", filepath.Base(sf.Path), err)
			}
			var n int64
			for _, r := range rows {
				if err := gctx.Err(); err != nil {
					return err
				}
				if pred.Match(r.Doc) {
					n++
				}
			}
			metrics.DocumentsScanned.Add(float64(len(rows)))
			total.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total.Load(), nil
}

// Collections returns the names of all collections in memory or on disk.
func (e *Engine) Collections() ([]string, error) {
	e.mu.RLock()
	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	e.mu.RUnlock()

	files, err := e.snapshotFiles("")
	if err != nil {
		return nil, err
	}
	for _, sf := range files {
		names = append(names, sf.Collection)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// CacheStats returns the predicate cache counters.
func (e *Engine) CacheStats() filter.CacheStats {
	return e.cache.Stats()
}

// Close flushes in-memory tables and releases the WAL and worker pool.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.mu.Unlock()

	e.flushWG.Wait()
	err := e.Flush()

	if cerr := e.wal.Close(); err == nil {
		err = cerr
	}
	e.matcher.Release()
	return err
}

// snapshotFile describes a persisted snapshot by its name:
// <collection>_<minTs>_<maxTs>.nfs
type snapshotFile struct {
	Path       string
	Collection string
	MinTs      int64
	MaxTs      int64
}

// snapshotFiles lists the snapshots of collection, newest first. An empty
// collection lists all snapshots.
func (e *Engine) snapshotFiles(collection string) ([]snapshotFile, error) {
	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []snapshotFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}
		sf, err := parseSnapshotName(entry.Name())
		if err != nil {
			continue
		}
		if collection != "" && sf.Collection != collection {
			continue
		}
		sf.Path = filepath.Join(e.dataDir, entry.Name())
		files = append(files, sf)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].MaxTs > files[j].MaxTs
	})
	return files, nil
}

func snapshotName(collection string, minTs, maxTs int64) string {
	return fmt.Sprintf("%s_%d_%d%s", collection, minTs, maxTs, snapshotExt)
}

// parseSnapshotName splits from the right because collection names may
// contain underscores.
func parseSnapshotName(name string) (snapshotFile, error) {
	base := strings.TrimSuffix(filepath.Base(name), snapshotExt)
	i := strings.LastIndexByte(base, '_')
	if i <= 0 {
		return snapshotFile{}, fmt.Errorf("invalid snapshot name %q", name)
	}
	j := strings.LastIndexByte(base[:i], '_')
	if j <= 0 {
		return snapshotFile{}, fmt.Errorf("invalid snapshot name %q", name)
	}
	minTs, err1 := strconv.ParseInt(base[j+1:i], 10, 64)
	maxTs, err2 := strconv.ParseInt(base[i+1:], 10, 64)
	if err1 != nil || err2 != nil {
		return snapshotFile{}, fmt.Errorf("invalid snapshot timestamps %q", name)
	}
	return snapshotFile{Collection: base[:j], MinTs: minTs, MaxTs: maxTs}, nil
}

func docsOf(rows []Row) []value.Value {
	docs := make([]value.Value, len(rows))
	for i := range rows {
		docs[i] = rows[i].Doc
	}
	return docs
}

func observe(kind string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
