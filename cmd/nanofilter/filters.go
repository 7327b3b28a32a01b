package main

import (
	"fmt"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/coffersTech/nanofilter/internal/pkg/nanoql"
	"github.com/coffersTech/nanofilter/value"
)

// filterSpec combines a JSON filter and a NanoQL expression into one filter
// document. Either may be empty.
func filterSpec(filterJSON, q string) (value.Value, error) {
	spec := value.Null()
	if filterJSON != "" {
		v, err := value.ParseJSON([]byte(filterJSON))
		if err != nil {
			return spec, &filter.ConfigurationError{Code: filter.CodeInvalidJSON, Message: "invalid filter JSON", Cause: err}
		}
		spec = v
	}
	if q == "" {
		return spec, nil
	}

	translated, err := nanoql.Translate(q)
	if err != nil {
		return spec, fmt.Errorf("invalid query syntax: %w", err)
	}
	switch {
	case translated.IsNull():
		return spec, nil
	case spec.IsNull():
		return translated, nil
	}
	return value.ObjectOf(value.F("$and", value.ArrayOf(spec, translated))), nil
}

// describeError adds the error code to compile failures.
func describeError(err error) string {
	if code := filter.ErrorCodeOf(err); code != "" {
		return fmt.Sprintf("%v [%s]", err, code)
	}
	return err.Error()
}
