package engine

import "fmt"

// ErrorKind classifies engine failures. The first six kinds are validation
// failures detected before any query text is compiled; the caller can always
// recover by correcting the request.
type ErrorKind string

const (
	KindUnknownTable              ErrorKind = "unknown_table"
	KindUnknownField              ErrorKind = "unknown_field"
	KindInvalidFilterValue        ErrorKind = "invalid_filter_value"
	KindTypeMismatch              ErrorKind = "type_mismatch"
	KindFilterTooDeep             ErrorKind = "filter_too_deep"
	KindInvalidAggregateParameter ErrorKind = "invalid_aggregate_parameter"
	KindAmbiguousAggregation      ErrorKind = "ambiguous_aggregation"
	KindQueryTimeout              ErrorKind = "query_timeout"
	KindStoreUnavailable          ErrorKind = "store_unavailable"
	KindExecutionError            ErrorKind = "execution_error"
)

// Error is the uniform error type surfaced by the engine. Store-reported
// failure detail is kept in Err and never mixed into validation messages.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether the error was detected before query
// compilation and is correctable by the caller.
func (e *Error) IsValidation() bool {
	switch e.Kind {
	case KindUnknownTable, KindUnknownField, KindInvalidFilterValue,
		KindTypeMismatch, KindFilterTooDeep, KindInvalidAggregateParameter,
		KindAmbiguousAggregation:
		return true
	}
	return false
}

func errUnknownTable(table string) *Error {
	return &Error{Kind: KindUnknownTable, Message: fmt.Sprintf("table %q is not registered", table)}
}

func errUnknownField(table, field string) *Error {
	return &Error{Kind: KindUnknownField, Message: fmt.Sprintf("field %q does not exist in table %q", field, table)}
}

func errInvalidFilterValue(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidFilterValue, Message: fmt.Sprintf(format, args...)}
}

func errTypeMismatch(field string, want ColumnType, got any) *Error {
	return &Error{Kind: KindTypeMismatch, Message: fmt.Sprintf("field %q expects %s, got %T", field, want, got)}
}

func errFilterTooDeep(max int) *Error {
	return &Error{Kind: KindFilterTooDeep, Message: fmt.Sprintf("filter nesting exceeds maximum depth %d", max)}
}

func errInvalidAggregateParameter(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidAggregateParameter, Message: fmt.Sprintf(format, args...)}
}

func errAmbiguousAggregation(field string) *Error {
	return &Error{Kind: KindAmbiguousAggregation, Message: fmt.Sprintf("column %q is selected without aggregation or grouping", field)}
}

func errQueryTimeout(err error) *Error {
	return &Error{Kind: KindQueryTimeout, Message: "query exceeded deadline", Err: err}
}

func errStoreUnavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: "store is unreachable", Err: err}
}

func errExecution(err error) *Error {
	return &Error{Kind: KindExecutionError, Message: "query execution failed", Err: err}
}
