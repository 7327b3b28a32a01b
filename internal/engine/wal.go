package engine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/coffersTech/nanofilter/value"
	"github.com/vmihailenco/msgpack/v5"
)

// WAL handles write-ahead logging to prevent data loss during crashes.
// Each record is [len uint32][msgpack walRecord].
type WAL struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// WALEntry is one replayed row together with its collection.
type WALEntry struct {
	Collection string
	Row        Row
}

type walRecord struct {
	Collection string `msgpack:"c"`
	ID         string `msgpack:"i"`
	Timestamp  int64  `msgpack:"t"`
	Doc        []byte `msgpack:"d"`
}

// OpenWAL opens or creates a WAL file at the specified path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file: f,
		path: path,
	}, nil
}

// Write appends rows of one collection to the WAL in a single write.
func (w *WAL) Write(collection string, rows []Row) error {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	for _, row := range rows {
		doc, err := value.MarshalMsgpack(row.Doc)
		if err != nil {
			return err
		}
		data, err := msgpack.Marshal(&walRecord{
			Collection: collection,
			ID:         row.ID,
			Timestamp:  row.Timestamp,
			Doc:        doc,
		})
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
		buf.Write(lenBuf)
		buf.Write(data)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.file.Write(buf.Bytes())
	return err
}

// Sync flushes the WAL file buffers to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Reset truncates the WAL file.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekStart)
	return err
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	return w.file.Close()
}

// maxWALRecord bounds a single record. A longer length prefix is corruption.
const maxWALRecord = 64 << 20

// Replay reads the WAL and returns all entries. A torn or corrupt record at
// the tail is reported as an error together with every entry before it, and
// the file is truncated back to the last complete record so later appends
// are replayable.
func (w *WAL) Replay() ([]WALEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var (
		entries []WALEntry
		good    int64
		tailErr error
	)
	r := bufio.NewReader(w.file)
	lenBuf := make([]byte, 4)
	for {
		_, err := io.ReadFull(r, lenBuf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			tailErr = fmt.Errorf("wal replay (len): %w", err)
			break
		}

		length := binary.LittleEndian.Uint32(lenBuf)
		if length == 0 || length > maxWALRecord {
			tailErr = fmt.Errorf("wal replay (len): record length %d out of range at offset %d", length, good)
			break
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			tailErr = fmt.Errorf("wal replay (data): %w", err)
			break
		}

		var rec walRecord
		if err := msgpack.Unmarshal(data, &rec); err != nil {
			tailErr = fmt.Errorf("wal replay (record): %w", err)
			break
		}
		doc, err := value.ParseMsgpack(rec.Doc)
		if err != nil {
			tailErr = fmt.Errorf("wal replay (doc): %w", err)
			break
		}
		entries = append(entries, WALEntry{
			Collection: rec.Collection,
			Row:        Row{ID: rec.ID, Timestamp: rec.Timestamp, Doc: doc},
		})
		good += 4 + int64(length)
	}

	if tailErr != nil {
		if err := w.file.Truncate(good); err != nil {
			return entries, errors.Join(tailErr, err)
		}
	}
	// leave the offset at the end so later appends follow the replayed data
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return entries, errors.Join(tailErr, err)
	}
	return entries, tailErr
}
