package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/coffersTech/nanofilter/value"
	"github.com/klauspost/compress/zstd"
)

// ReadDocuments loads every document of a data file. The format follows the
// extension: .msgpack or .mp for concatenated MessagePack documents, anything
// else for JSON (a single array is unwrapped, otherwise JSON lines). A
// trailing .zst is decompressed first. "-" reads JSON lines from stdin.
func ReadDocuments(path string) ([]value.Value, error) {
	var r io.Reader
	name := path
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
		name = strings.TrimSuffix(name, ".zst")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return DecodeDocuments(data, filepath.Ext(name))
}

// DecodeDocuments decodes data according to a file extension as described
// for ReadDocuments.
func DecodeDocuments(data []byte, ext string) ([]value.Value, error) {
	switch strings.ToLower(ext) {
	case ".msgpack", ".mp":
		return value.ParseMsgpackStream(bytes.NewReader(data))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		v, err := value.ParseJSON(trimmed)
		if err != nil {
			return nil, err
		}
		return v.Array(), nil
	}
	return value.ParseJSONLines(data)
}
