package acquire

import "fmt"

// Kind classifies acquisition failures
type Kind string

const (
	// KindNetwork means the HTTP request could not be performed
	KindNetwork Kind = "network"
	// KindStatus means the server answered with a non-success status
	KindStatus Kind = "status"
	// KindFile means the local file could not be read
	KindFile Kind = "file"
	// KindEncoding means the content is not valid UTF-8 text
	KindEncoding Kind = "encoding"
	// KindTimeout means the acquisition deadline expired
	KindTimeout Kind = "timeout"
	// KindTooLarge means the content exceeds the configured size limit
	KindTooLarge Kind = "too_large"
)

// Error is returned when the content of a source locator cannot be acquired
type Error struct {
	Kind    Kind
	Locator string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to acquire %s (%s): %v", e.Locator, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
