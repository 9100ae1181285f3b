// Package errs defines the archiver's error taxonomy (SPEC_FULL.md §4.13,
// §7): a fixed set of kinds shared by every layer, wrapped around whatever
// underlying cause produced them so callers can both log a human message and
// branch on the kind with errors.Is/errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories a layer of the archiver can raise.
type Kind int

const (
	Success Kind = iota
	Unknown
	OutOfMemory
	InvalidArg
	NotFound
	EndOfFile
	WrongType
	Closed
	NoSpace
	Seek
	Read
	Write
	Corrupt
	WrongVolume
	WrongVersion
	WrongArchive
	Open
	Exists
	Stat
)

var names = map[Kind]string{
	Success:      "success",
	Unknown:      "unknown",
	OutOfMemory:  "out of memory",
	InvalidArg:   "invalid argument",
	NotFound:     "not found",
	EndOfFile:    "end of file",
	WrongType:    "wrong type",
	Closed:       "closed",
	NoSpace:      "no space left",
	Seek:         "seek error",
	Read:         "read error",
	Write:        "write error",
	Corrupt:      "corrupt data",
	WrongVolume:  "wrong volume",
	WrongVersion: "wrong version",
	WrongArchive: "wrong archive",
	Open:         "open error",
	Exists:       "already exists",
	Stat:         "stat error",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "unknown"
}

// Error wraps a Kind with context and an optional underlying cause.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New builds an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap builds an *Error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Is lets errors.Is(err, errs.New(kind, "")) match on kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.kind == e.kind
	}
	return false
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to Unknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}

// Is reports whether err's kind equals kind, regardless of wrapping.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
