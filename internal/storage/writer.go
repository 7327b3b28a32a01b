package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coffersTech/nanofilter/internal/engine"
	"github.com/coffersTech/nanofilter/value"
	"github.com/klauspost/compress/zstd"
)

// MagicHeader starts every snapshot file.
var MagicHeader = []byte("NFSNAP01")

// footerSize is RowCount(4) + MinTs(8) + MaxTs(8).
const footerSize = 20

// ColumnWriter writes collection tables as snapshot files. Each column is a
// zstd block prefixed by its compressed size:
//
//	header | ids | timestamps | documents (msgpack stream) | footer
type ColumnWriter struct {
	encoder *zstd.Encoder
}

// NewColumnWriter creates a writer compressing at the given zstd level
// (1 fastest to 22 best). Zero selects the library default.
func NewColumnWriter(level int) (*ColumnWriter, error) {
	var opts []zstd.EOption
	if level != 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	return &ColumnWriter{encoder: enc}, nil
}

// WriteSnapshot writes the table to path. The file is written under a
// temporary name and renamed into place, so readers never see a partial
// snapshot. The caller must keep the table from changing during the call.
func (cw *ColumnWriter) WriteSnapshot(path string, c *engine.Collection) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	if err := cw.write(w, c); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (cw *ColumnWriter) write(w *bufio.Writer, c *engine.Collection) error {
	if _, err := w.Write(MagicHeader); err != nil {
		return err
	}

	ids, ts, docs := c.IDCol, c.TsCol, c.DocCol
	rowCount := uint32(len(ts))
	if len(ids) != len(ts) || len(docs) != len(ts) {
		return fmt.Errorf("storage: column length mismatch (%d ids, %d timestamps, %d docs)", len(ids), len(ts), len(docs))
	}
	if rowCount == 0 {
		return cw.writeFooter(w, 0, 0, 0)
	}

	if err := cw.writeStringCol(w, ids); err != nil {
		return err
	}
	if err := cw.writeInt64Col(w, ts); err != nil {
		return err
	}
	if err := cw.writeDocCol(w, docs); err != nil {
		return err
	}
	return cw.writeFooter(w, rowCount, ts[0], ts[rowCount-1])
}

func (cw *ColumnWriter) writeInt64Col(w *bufio.Writer, data []int64) error {
	raw := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(raw[8*i:], uint64(v))
	}
	return cw.compressAndWrite(w, raw)
}

// writeStringCol serializes [Len uint32][Bytes]...
func (cw *ColumnWriter) writeStringCol(w *bufio.Writer, data []string) error {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	for _, s := range data {
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
		buf.Write(lenBuf)
		buf.WriteString(s)
	}
	return cw.compressAndWrite(w, buf.Bytes())
}

func (cw *ColumnWriter) writeDocCol(w *bufio.Writer, docs []value.Value) error {
	var buf bytes.Buffer
	for i, d := range docs {
		if err := value.EncodeMsgpack(&buf, d); err != nil {
			return fmt.Errorf("storage: encode document %d: %w", i, err)
		}
	}
	return cw.compressAndWrite(w, buf.Bytes())
}

func (cw *ColumnWriter) compressAndWrite(w *bufio.Writer, raw []byte) error {
	compressed := cw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	if err := binary.Write(w, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

func (cw *ColumnWriter) writeFooter(w *bufio.Writer, rowCount uint32, minTs, maxTs int64) error {
	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[0:4], rowCount)
	binary.LittleEndian.PutUint64(footer[4:12], uint64(minTs))
	binary.LittleEndian.PutUint64(footer[12:20], uint64(maxTs))
	_, err := w.Write(footer[:])
	return err
}
