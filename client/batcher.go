package client

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coffersTech/nanofilter/value"
)

type BatchOptions struct {
	BatchSize int           // documents per request, default 100
	Interval  time.Duration // max delay before a partial batch is sent, default 1s
	QueueSize int           // default 10000
	OnError   func(err error)
}

// Batcher buffers documents and inserts them in the background as
// MessagePack batches. Add never blocks; documents are dropped when the
// queue is full.
type Batcher struct {
	client     *Client
	collection string
	opts       BatchOptions

	queue   chan value.Value
	done    chan struct{}
	closing sync.Once
	wg      sync.WaitGroup

	sent    atomic.Int64
	dropped atomic.Int64
}

func NewBatcher(c *Client, collection string, opts BatchOptions) *Batcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10000
	}
	if opts.OnError == nil {
		opts.OnError = func(err error) {
			fmt.Fprintf(os.Stderr, "nanofilter batcher: %v\n", err)
		}
	}
	b := &Batcher{
		client:     c,
		collection: collection,
		opts:       opts,
		queue:      make(chan value.Value, opts.QueueSize),
		done:       make(chan struct{}),
	}
	b.wg.Add(1)
	go b.runLoop()
	return b
}

// Add enqueues doc and reports whether it was accepted.
func (b *Batcher) Add(doc value.Value) bool {
	select {
	case <-b.done:
		b.dropped.Add(1)
		return false
	default:
	}
	select {
	case b.queue <- doc:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Sent returns the number of documents the server acknowledged.
func (b *Batcher) Sent() int64 { return b.sent.Load() }

// Dropped returns the number of documents rejected by Add or lost to a
// failed request.
func (b *Batcher) Dropped() int64 { return b.dropped.Load() }

// Close sends whatever is queued and stops the background loop.
func (b *Batcher) Close() {
	b.closing.Do(func() { close(b.done) })
	b.wg.Wait()
}

func (b *Batcher) runLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	batch := make([]value.Value, 0, b.opts.BatchSize)

	send := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.client.http.Timeout)
		ids, err := b.client.InsertMsgpack(ctx, b.collection, batch)
		cancel()
		if err != nil {
			b.dropped.Add(int64(len(batch)))
			b.opts.OnError(err)
		} else {
			b.sent.Add(int64(len(ids)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case doc := <-b.queue:
			batch = append(batch, doc)
			if len(batch) >= b.opts.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case <-b.done:
			for {
				select {
				case doc := <-b.queue:
					batch = append(batch, doc)
					if len(batch) >= b.opts.BatchSize {
						send()
					}
				default:
					send()
					return
				}
			}
		}
	}
}
