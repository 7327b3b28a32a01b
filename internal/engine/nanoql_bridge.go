package engine

import (
	"fmt"

	"github.com/coffersTech/nanofilter/internal/pkg/nanoql"
	"github.com/coffersTech/nanofilter/value"
)

// querySpec returns the filter document for q, ANDing the translated NanoQL
// expression with the filter document when both are present.
func querySpec(q Query) (value.Value, error) {
	if q.Q == "" {
		return q.Filter, nil
	}
	translated, err := nanoql.Translate(q.Q)
	if err != nil {
		return value.Null(), fmt.Errorf("invalid query syntax: %w", err)
	}
	switch {
	case translated.IsNull():
		return q.Filter, nil
	case q.Filter.IsNull():
		return translated, nil
	case q.Filter.Kind() != value.KindObject:
		// left for the compiler to reject
		return q.Filter, nil
	}
	return value.ObjectOf(value.F("$and", value.ArrayOf(q.Filter, translated))), nil
}
