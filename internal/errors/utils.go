package errors

import "errors"

// Wrap wraps an error with additional context, creating a SlateError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *SlateError {
	if err == nil {
		return nil
	}

	var se *SlateError
	if errors.As(err, &se) {
		return &SlateError{
			Type:    errType,
			Code:    code,
			Message: message,
			Cause:   se,
			Entity:  se.Entity,
			Path:    se.Path,
			Line:    se.Line,
			Context: se.Context,
		}
	}

	return &SlateError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapSource wraps an error as a source error for the given entity.
func WrapSource(err error, entity, code, message string) *SlateError {
	se := Wrap(err, ErrorTypeSource, code, message)
	if se != nil {
		se.Entity = entity
	}
	return se
}

// WrapTransform wraps an error as a transform error for the given entity.
func WrapTransform(err error, entity, code, message string) *SlateError {
	se := Wrap(err, ErrorTypeTransform, code, message)
	if se != nil {
		se.Entity = entity
	}
	return se
}

// WrapIO wraps an error as an I/O error.
func WrapIO(err error, code, message string) *SlateError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// Unwrap is errors.Unwrap, re-exported because this package shadows the
// standard one.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// As is errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New is errors.New.
func New(text string) error {
	return errors.New(text)
}
