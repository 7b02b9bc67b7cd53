package depot

import (
	"fmt"
)

// ErrorKind classifies errors into the small number of categories the
// rest of the system dispatches on. The distinction that matters to
// callers is essentially whose fault the error is: a reference that
// doesn't exist, a reference that matches too much, an install that
// would collide, bytes that aren't a bundle, and so on.
type ErrorKind string

const (
	NotFound      ErrorKind = "not-found"
	MultipleFound ErrorKind = "multiple-found"
	Conflict      ErrorKind = "conflict"
	NotABundle    ErrorKind = "not-a-bundle"
	Dependency    ErrorKind = "dependency"
	Configuration ErrorKind = "configuration"
)

// Error is the error value used throughout depot. Help is a message
// that can be shown to the user; Err is the underlying error, kept for
// logs and for cause chains.
type Error struct {
	Kind ErrorKind
	Help string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Help + ": " + e.Err.Error()
	}
	return e.Help
}

// Cause satisfies the pkg/errors causer convention.
func (e *Error) Cause() error { return e.Err }

func NewError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: err, Help: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...interface{}) *Error {
	return NewError(NotFound, nil, format, args...)
}

func MultipleFoundError(format string, args ...interface{}) *Error {
	return NewError(MultipleFound, nil, format, args...)
}

func ConflictError(format string, args ...interface{}) *Error {
	return NewError(Conflict, nil, format, args...)
}

func NotABundleError(err error, format string, args ...interface{}) *Error {
	return NewError(NotABundle, err, format, args...)
}

func DependencyError(format string, args ...interface{}) *Error {
	return NewError(Dependency, nil, format, args...)
}

func ConfigurationError(format string, args ...interface{}) *Error {
	return NewError(Configuration, nil, format, args...)
}

// KindOf walks the cause chain and reports the kind of the outermost
// *Error found, or "" if the chain contains none. It deliberately does
// not use errors.Cause, which would unwrap past the *Error itself.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		err = cause.Cause()
	}
	return ""
}

func IsNotFound(err error) bool      { return KindOf(err) == NotFound }
func IsMultipleFound(err error) bool { return KindOf(err) == MultipleFound }
func IsConflict(err error) bool      { return KindOf(err) == Conflict }
func IsNotABundle(err error) bool    { return KindOf(err) == NotABundle }
func IsDependency(err error) bool    { return KindOf(err) == Dependency }
func IsConfiguration(err error) bool { return KindOf(err) == Configuration }
