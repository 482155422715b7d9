package template

import "fmt"

// Error reports a message template that does not compile
type Error struct {
	Message Message
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid template for message %s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
