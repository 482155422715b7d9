package sparql

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies query failures
type ErrorKind string

const (
	// KindSyntax means the query text could not be parsed
	KindSyntax ErrorKind = "syntax"
	// KindUnsupported means the query uses a feature outside the supported subset
	KindUnsupported ErrorKind = "unsupported"
	// KindEvaluation means evaluation failed at runtime
	KindEvaluation ErrorKind = "evaluation"
	// KindTimeout means the evaluation deadline expired
	KindTimeout ErrorKind = "timeout"
)

// QueryError is returned for any query that cannot be answered
type QueryError struct {
	Kind ErrorKind
	// Offset is the byte offset in the query text, -1 when unknown
	Offset  int
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("%s error at offset %d: %s", e.Kind, e.Offset, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func syntaxError(offset int, format string, args ...interface{}) *QueryError {
	return &QueryError{Kind: KindSyntax, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func unsupportedError(offset int, format string, args ...interface{}) *QueryError {
	return &QueryError{Kind: KindUnsupported, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// contextError converts a done context into a QueryError
func contextError(err error) *QueryError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &QueryError{Kind: KindTimeout, Offset: -1, Message: "query deadline exceeded", Err: err}
	}
	return &QueryError{Kind: KindEvaluation, Offset: -1, Message: "query cancelled", Err: err}
}
