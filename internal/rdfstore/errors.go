package rdfstore

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for format identifiers the store cannot parse.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ParseError is returned when a document is malformed for its declared format
type ParseError struct {
	Format Format
	// Statement is the 1-based index of the statement being decoded, zero
	// when the document was rejected before decoding
	Statement int
	Err       error
}

func (e *ParseError) Error() string {
	if e.Statement == 0 {
		return fmt.Sprintf("failed to parse %s document: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("failed to parse %s document at statement %d: %v", e.Format, e.Statement, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
