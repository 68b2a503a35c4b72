// Package ftperr defines the error taxonomy shared by every FTPPlus layer.
//
// Components return *Error values tagged with a Kind. The dispatcher and the
// client translate a Kind into a user-facing message in the dialect of the
// request, so no layer below them has to know about wire vocabulary.
package ftperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// InternalError is the catch-all for anything unanticipated.
	InternalError Kind = iota

	// IncompleteMessage indicates the peer closed the stream before a frame
	// delimiter was observed.
	IncompleteMessage

	// MalformedPayload indicates invalid JSON, a missing required field or
	// invalid base64 data.
	MalformedPayload

	// InvalidName indicates an empty file name, a traversal attempt or a
	// character outside the allow-listed class.
	InvalidName

	// DisallowedType indicates an extension outside the allow-list.
	DisallowedType

	// TooLarge indicates a payload above the configured ceiling.
	TooLarge

	// MaliciousContent indicates the scanner flagged the payload.
	MaliciousContent

	// NotFound indicates no stored file exists under the requested name.
	NotFound

	// TooMany indicates a bulk download was refused because the namespace
	// holds too many files.
	TooMany

	// UnknownCommand indicates an unrecognized command token.
	UnknownCommand

	// StorageIO indicates a persistence failure (disk full, permission denied,
	// backend unavailable).
	StorageIO

	// ConnectionFailed indicates the client could not reach the server.
	ConnectionFailed
)

var kindNames = map[Kind]string{
	InternalError:     "InternalError",
	IncompleteMessage: "IncompleteMessage",
	MalformedPayload:  "MalformedPayload",
	InvalidName:       "InvalidName",
	DisallowedType:    "DisallowedType",
	TooLarge:          "TooLarge",
	MaliciousContent:  "MaliciousContent",
	NotFound:          "NotFound",
	TooMany:           "TooMany",
	UnknownCommand:    "UnknownCommand",
	StorageIO:         "StorageIO",
	ConnectionFailed:  "ConnectionFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a failure tagged with its Kind.
type Error struct {
	// Kind is the failure category
	Kind Kind

	// Message is a human-readable description for logs
	Message string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, &Error{Kind: NotFound}) works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// New creates an *Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err. Untagged errors are InternalError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
