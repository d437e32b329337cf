// Package werror defines the error taxonomy shared by every package in
// this module, so that callers can errors.Is/As against a stable kind
// regardless of which component raised it. It mirrors the plain,
// xerrors-wrapped style the teacher uses throughout internal/squashfs
// and internal/repo rather than introducing a new error framework.
package werror

import "golang.org/x/xerrors"

// Kind is one of a fixed taxonomy of error categories. It is not a Go
// error type itself; Error wraps a Kind with context.
type Kind int

const (
	_ Kind = iota
	Open
	Read
	Write
	Stat
	NoMem
	Decompression
	InvalidResource
	InvalidResourceHash
	NTFS3G
	InvalidParam
	ImageNameCollision
	NotDir
	SetSecurity
	SetTimestamps
	SetAttributes
	SetShortName
	SetReparseData
	InvalidReparseData
)

func (k Kind) String() string {
	switch k {
	case Open:
		return "OPEN"
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case Stat:
		return "STAT"
	case NoMem:
		return "NOMEM"
	case Decompression:
		return "DECOMPRESSION"
	case InvalidResource:
		return "INVALID_RESOURCE"
	case InvalidResourceHash:
		return "INVALID_RESOURCE_HASH"
	case NTFS3G:
		return "NTFS_3G"
	case InvalidParam:
		return "INVALID_PARAM"
	case ImageNameCollision:
		return "IMAGE_NAME_COLLISION"
	case NotDir:
		return "NOTDIR"
	case SetSecurity:
		return "SET_SECURITY"
	case SetTimestamps:
		return "SET_TIMESTAMPS"
	case SetAttributes:
		return "SET_ATTRIBUTES"
	case SetShortName:
		return "SET_SHORT_NAME"
	case SetReparseData:
		return "SET_REPARSE_DATA"
	case InvalidReparseData:
		return "INVALID_REPARSE_DATA"
	default:
		return "UNKNOWN"
	}
}

// Error pairs a Kind with a message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, werror.New(werror.Read, "")) works for kind checks
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf constructs an *Error of the given kind with an xerrors-formatted
// message, supporting %w to wrap an underlying cause.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	wrapped := xerrors.Errorf(format, args...)
	return &Error{Kind: kind, Message: wrapped.Error(), Cause: xerrors.Unwrap(wrapped)}
}
