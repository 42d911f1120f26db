package teleconnection

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for malformed user input, before any network call.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoSeries is returned when no selected model produced a series.
	ErrNoSeries = errors.New("no forecast series available")
)

// TransportError means the provider could not be reached (network failure,
// timeout, or an open circuit breaker).
type TransportError struct {
	Model string
	Query ModelQuery
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.Model, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError is a non-success HTTP status from the provider.
type ProviderError struct {
	Model      string
	Query      ModelQuery
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d for %s", e.StatusCode, e.Model)
}

// DecodeError means the payload is not valid UTF-8 text.
type DecodeError struct {
	// Offset is the byte offset of the first invalid sequence.
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("payload is not valid UTF-8 (offset %d)", e.Offset)
}

// SchemaError describes a payload that does not have the forecast table shape.
// Row and Column are zero-based positions in the raw table; -1 when not applicable.
type SchemaError struct {
	Row    int
	Column int
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Row >= 0 && e.Column >= 0:
		return fmt.Sprintf("schema error at row %d column %d: %s", e.Row, e.Column, e.Reason)
	case e.Row >= 0:
		return fmt.Sprintf("schema error at row %d: %s", e.Row, e.Reason)
	default:
		return "schema error: " + e.Reason
	}
}

// QueryError attaches the originating query to a per-model fetch or parse failure.
type QueryError struct {
	Query ModelQuery
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Kind names the failure category for reporting.
func (e *QueryError) Kind() string {
	var (
		te *TransportError
		pe *ProviderError
		de *DecodeError
		se *SchemaError
	)
	switch {
	case errors.As(e.Err, &pe):
		return "provider"
	case errors.As(e.Err, &te):
		return "transport"
	case errors.As(e.Err, &de):
		return "decode"
	case errors.As(e.Err, &se):
		return "schema"
	default:
		return "unknown"
	}
}

// StatusCode returns the provider HTTP status, or 0 when the failure was not
// a provider response.
func (e *QueryError) StatusCode() int {
	var pe *ProviderError
	if errors.As(e.Err, &pe) {
		return pe.StatusCode
	}
	return 0
}
