package ferrors

import "errors"

// Wrap annotates err with a message, preserving the chain for errors.Is/As.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &InternalError{Message: message, Cause: err}
}

// Is is a convenience re-export of errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is a convenience re-export of errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// IsNotFound reports whether err (or its chain) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
