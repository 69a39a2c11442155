package lib

import (
	"errors"
	"fmt"
)

// WrapError combines two errors into one, so the result matches both of
// them with errors.Is. Outer is the high-level sentinel, inner carries
// the cause.
func WrapError(outer, inner error) error {
	return &wrappedError{outer: outer, inner: inner}
}

type wrappedError struct {
	outer error
	inner error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.outer, e.inner)
}

func (e *wrappedError) Unwrap() error {
	return e.inner
}

func (e *wrappedError) Is(target error) bool {
	return errors.Is(e.outer, target)
}

func (e *wrappedError) As(target interface{}) bool {
	return errors.As(e.outer, target)
}
