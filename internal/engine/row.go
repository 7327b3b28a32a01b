package engine

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/coffersTech/nanofilter/value"
)

// Row is a stored document with the id and ingest time assigned by the engine.
// Used when reading data from disk or returning query results.
type Row struct {
	ID        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Doc       value.Value `json:"doc"`
}

// Query selects documents from one collection.
type Query struct {
	Collection string      `json:"collection"`
	Filter     value.Value `json:"filter"` // filter document, null matches everything
	Q          string      `json:"q"`      // NanoQL expression, ANDed with Filter
	MinTime    int64       `json:"min_time"`
	MaxTime    int64       `json:"max_time"`
	Limit      int         `json:"limit"`
}

// TimeRange bounds ingest timestamps. Zero bounds are open.
type TimeRange struct {
	MinTime int64
	MaxTime int64
}

func (q Query) timeRange() TimeRange {
	return TimeRange{MinTime: q.MinTime, MaxTime: q.MaxTime}
}

// Contains reports whether ts falls inside the range.
func (tr TimeRange) Contains(ts int64) bool {
	if tr.MinTime > 0 && ts < tr.MinTime {
		return false
	}
	if tr.MaxTime > 0 && ts > tr.MaxTime {
		return false
	}
	return true
}

// Overlaps reports whether [minTs, maxTs] intersects the range.
func (tr TimeRange) Overlaps(minTs, maxTs int64) bool {
	if tr.MinTime > 0 && maxTs < tr.MinTime {
		return false
	}
	if tr.MaxTime > 0 && minTs > tr.MaxTime {
		return false
	}
	return true
}

var (
	// ErrInvalidCollection is returned for collection names that cannot be
	// used as a snapshot file prefix.
	ErrInvalidCollection = errors.New("invalid collection name")
	// ErrInvalidDocument is returned when an ingested document is not an object.
	ErrInvalidDocument = errors.New("document must be an object")
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

var collectionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateCollection checks that name is usable as a collection name.
func ValidateCollection(name string) error {
	if !collectionName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}
