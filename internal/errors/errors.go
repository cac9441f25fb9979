// Package errors defines the error taxonomy for quickseek.
//
// Index failures are never surfaced to searchers; these kinds exist so
// that callers can log and count them consistently and decide locally
// whether a failure degrades a shard, a volume, or a single event.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindIO covers open/create/read/write/rename failures on index files.
	KindIO Kind = "IO"
	// KindSerialization covers corrupt or incompatible shard payloads.
	KindSerialization Kind = "SERIALIZATION"
	// KindWatch covers failures of the OS change-notification channel.
	KindWatch Kind = "WATCH"
	// KindPathEncoding covers paths that are not valid text.
	KindPathEncoding Kind = "PATH_ENCODING"
	// KindConfig covers invalid configuration.
	KindConfig Kind = "CONFIG"
)

// Error is the structured error type used across the index.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Op names the operation that failed (e.g. "shard.save").
	Op string
	// Path is the file or directory involved, if any.
	Path string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, ErrIO) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
	}
	return false
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrIO            = &Error{Kind: KindIO}
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrWatch         = &Error{Kind: KindWatch}
	ErrPathEncoding  = &Error{Kind: KindPathEncoding}
	ErrConfig        = &Error{Kind: KindConfig}
)

// New creates an Error with a formatted message as its cause.
func New(kind Kind, op, path string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind and operation context to err. Returns nil for nil err.
func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// IO wraps err as an IO error.
func IO(op, path string, err error) error {
	return Wrap(KindIO, op, path, err)
}

// Serialization wraps err as a serialization error.
func Serialization(op, path string, err error) error {
	return Wrap(KindSerialization, op, path, err)
}

// Watch wraps err as a watch subsystem error.
func Watch(op, path string, err error) error {
	return Wrap(KindWatch, op, path, err)
}

// KindOf extracts the Kind from the first *Error in err's chain.
// Returns the empty Kind if there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
