package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a ConfigurationError.
type ErrorCode string

const (
	// CodeInvalidSpec: the filter is not an object.
	CodeInvalidSpec ErrorCode = "invalid_spec"
	// CodeInvalidJSON: the filter text is not valid JSON.
	CodeInvalidJSON ErrorCode = "invalid_json"
	// CodeMalformedOperand: $in, $nin or $and got the wrong shape.
	CodeMalformedOperand ErrorCode = "malformed_operand"
	// CodeUnsupportedOperand: a value with no document form, such as a func.
	CodeUnsupportedOperand ErrorCode = "unsupported_operand"
	// CodeUnsupportedOperator: a reserved operator without matching behaviour.
	CodeUnsupportedOperator ErrorCode = "unsupported_operator"
	// CodeUnknownOperator: a $-prefixed key that is not an operator.
	CodeUnknownOperator ErrorCode = "unknown_operator"
	// CodeMisplacedOperator: an operator where it cannot apply.
	CodeMisplacedOperator ErrorCode = "misplaced_operator"
)

// ConfigurationError reports why a filter could not be compiled. No partial
// predicate is ever returned alongside it.
type ConfigurationError struct {
	Code     ErrorCode
	Path     string
	Operator string
	Message  string
	Cause    error
}

func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("filter: ")
	sb.WriteString(e.Message)
	if e.Operator != "" {
		sb.WriteString(" (operator ")
		sb.WriteString(e.Operator)
		sb.WriteByte(')')
	}
	if e.Path != "" {
		fmt.Fprintf(&sb, " at %q", e.Path)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ErrorCodeOf returns the code of the first ConfigurationError in err's chain,
// or "" if there is none.
func ErrorCodeOf(err error) ErrorCode {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func configErr(code ErrorCode, path, op, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Code:     code,
		Path:     path,
		Operator: op,
		Message:  fmt.Sprintf(format, args...),
	}
}
