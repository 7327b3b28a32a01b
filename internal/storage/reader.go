package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coffersTech/nanofilter/internal/engine"
	"github.com/coffersTech/nanofilter/value"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrInvalidHeader   = errors.New("invalid snapshot file header")
	ErrCorruptSnapshot = errors.New("corrupt snapshot file")
)

// RowIterator provides a row-by-row view of a snapshot.
type RowIterator interface {
	Next() bool
	Row() engine.Row
	Error() error
	Close() error
}

// SnapshotInfo is the footer of a snapshot file.
type SnapshotInfo struct {
	RowCount int
	MinTs    int64
	MaxTs    int64
}

// ColumnReader reads snapshot files. It is safe for concurrent use.
type ColumnReader struct {
	decoder *zstd.Decoder
}

func NewColumnReader() (*ColumnReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ColumnReader{decoder: dec}, nil
}

// Close releases the decoder.
func (cr *ColumnReader) Close() {
	cr.decoder.Close()
}

// NewIterator creates an iterator over the rows of a snapshot inside tr.
func (cr *ColumnReader) NewIterator(path string, tr engine.TimeRange) (RowIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	it := &FileIterator{
		reader: cr,
		file:   f,
		tr:     tr,
	}

	if err := it.init(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return it, nil
}

// FileIterator iterates over the rows of one snapshot file.
type FileIterator struct {
	reader *ColumnReader
	file   *os.File
	tr     engine.TimeRange

	ids        []string
	timestamps []int64
	docs       []value.Value

	rowCount int
	cursor   int
	currRow  engine.Row
	err      error
}

// readInfo validates the header and returns the footer.
func readInfo(f *os.File) (SnapshotInfo, error) {
	header := make([]byte, len(MagicHeader))
	if _, err := f.ReadAt(header, 0); err != nil {
		return SnapshotInfo{}, err
	}
	if !bytes.Equal(header, MagicHeader) {
		return SnapshotInfo{}, ErrInvalidHeader
	}

	stat, err := f.Stat()
	if err != nil {
		return SnapshotInfo{}, err
	}
	if stat.Size() < int64(len(MagicHeader)+footerSize) {
		return SnapshotInfo{}, fmt.Errorf("%w: file too small", ErrCorruptSnapshot)
	}

	footer := make([]byte, footerSize)
	if _, err := f.ReadAt(footer, stat.Size()-footerSize); err != nil {
		return SnapshotInfo{}, err
	}
	return SnapshotInfo{
		RowCount: int(binary.LittleEndian.Uint32(footer[0:4])),
		MinTs:    int64(binary.LittleEndian.Uint64(footer[4:12])),
		MaxTs:    int64(binary.LittleEndian.Uint64(footer[12:20])),
	}, nil
}

func (it *FileIterator) init() error {
	info, err := readInfo(it.file)
	if err != nil {
		return err
	}
	it.cursor = -1

	// file-level pruning on the footer range
	if info.RowCount == 0 || !it.tr.Overlaps(info.MinTs, info.MaxTs) {
		return nil
	}
	it.rowCount = info.RowCount

	// Each column is a single compressed block, decoded whole.
	if _, err := it.file.Seek(int64(len(MagicHeader)), io.SeekStart); err != nil {
		return err
	}

	idData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.ids = bytesToStringSlice(idData)

	tsData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.timestamps = bytesToInt64Slice(tsData)

	docData, err := it.reader.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.docs, err = value.ParseMsgpackStream(bytes.NewReader(docData))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	if it.rowCount != len(it.ids) || it.rowCount != len(it.timestamps) || it.rowCount != len(it.docs) {
		return fmt.Errorf("%w: column length mismatch", ErrCorruptSnapshot)
	}
	return nil
}

func (it *FileIterator) Next() bool {
	for {
		it.cursor++
		if it.cursor >= it.rowCount {
			return false
		}

		ts := it.timestamps[it.cursor]
		if !it.tr.Contains(ts) {
			continue
		}

		it.currRow = engine.Row{
			ID:        it.ids[it.cursor],
			Timestamp: ts,
			Doc:       it.docs[it.cursor],
		}
		return true
	}
}

func (it *FileIterator) Row() engine.Row {
	return it.currRow
}

func (it *FileIterator) Error() error {
	return it.err
}

func (it *FileIterator) Close() error {
	return it.file.Close()
}

// ReadSnapshot reads the rows of a snapshot inside tr, oldest first.
func (cr *ColumnReader) ReadSnapshot(path string, tr engine.TimeRange) ([]engine.Row, error) {
	it, err := cr.NewIterator(path, tr)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var rows []engine.Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	return rows, it.Error()
}

// Stat returns the footer of a snapshot without decoding its columns.
func Stat(path string) (SnapshotInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	defer f.Close()
	return readInfo(f)
}

// readAndDecompress reads a compressed block (size + data) and decompresses it.
func (cr *ColumnReader) readAndDecompress(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("%w: block size: %v", ErrCorruptSnapshot, err)
	}

	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("%w: block data: %v", ErrCorruptSnapshot, err)
	}

	decompressed, err := cr.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return decompressed, nil
}

// bytesToInt64Slice converts a byte slice to []int64 (LittleEndian).
func bytesToInt64Slice(data []byte) []int64 {
	result := make([]int64, len(data)/8)
	for i := range result {
		result[i] = int64(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return result
}

// bytesToStringSlice converts a byte slice to []string.
// Format: [Len uint32][Bytes]...
func bytesToStringSlice(data []byte) []string {
	var result []string
	for len(data) >= 4 {
		n := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if n > len(data) {
			break
		}
		result = append(result, string(data[:n]))
		data = data[n:]
	}
	return result
}
