package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks a missing or invalid required field
	ErrValidation = errors.New("validation failed")

	// ErrMalformedNumber marks a numeric field that could not be parsed
	ErrMalformedNumber = errors.New("malformed number")

	// ErrMissingIdentifier marks a row without ticker, ISIN or CUSIP
	ErrMissingIdentifier = errors.New("missing identifier")
)

// RowErrorKind classifies a rejected row
type RowErrorKind string

const (
	KindValidation        RowErrorKind = "validation"
	KindMalformedNumber   RowErrorKind = "malformed_number"
	KindMissingIdentifier RowErrorKind = "missing_identifier"
)

// RowError rejects one input row. It matches the sentinel for its kind
// with errors.Is.
type RowError struct {
	Row     int
	Field   string
	Kind    RowErrorKind
	Value   string
	Message string
}

func (e *RowError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "row %d", e.Row)
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Value != "" {
		fmt.Fprintf(&b, " (got %q)", e.Value)
	}
	return b.String()
}

func (e *RowError) Unwrap() error {
	switch e.Kind {
	case KindMalformedNumber:
		return ErrMalformedNumber
	case KindMissingIdentifier:
		return ErrMissingIdentifier
	default:
		return ErrValidation
	}
}

// HeaderError rejects the whole batch because required columns are missing
type HeaderError struct {
	Missing []string
	Headers []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("missing required column(s): %s (found: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Headers, ", "))
}
