package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a chart path or values file does not
// exist, optionally at a ref.
// The service uses it to tell new charts apart from fetch failures.
type NotFoundError struct {
	Path string
	Ref  string
}

// NewNotFoundError creates a NotFoundError for path at ref.
func NewNotFoundError(path, ref string) *NotFoundError {
	return &NotFoundError{Path: path, Ref: ref}
}

func (e *NotFoundError) Error() string {
	if e.Ref == "" {
		return e.Path + " not found"
	}
	return fmt.Sprintf("%s not found at ref %s", e.Path, e.Ref)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrHelpersNotFound is returned by conformance checks when a chart does
// not define the conventional name helpers, so there is nothing to compare.
var ErrHelpersNotFound = errors.New("chart defines no fullname helper")
