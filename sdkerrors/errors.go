// Package sdkerrors defines the error taxonomy shared by every component
// of the SD-card update core (image parsing, digest, validation, slot
// copying, orchestration).
package sdkerrors

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Kind classifies an Error for orchestrator-level branching. Components
// never switch on error strings; they construct or check a Kind instead.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoCandidate
	KindIoError
	KindShortRead
	KindShortWrite
	KindBadMagic
	KindInconsistentTlv
	KindBadTlvLength
	KindMissingDigest
	KindDigestMismatch
	KindFlashRead
	KindFlashErase
	KindFlashWrite
	KindStreamRead
	KindRevertFailed
)

func (k Kind) String() string {
	switch k {
	case KindNoCandidate:
		return "NoCandidate"
	case KindIoError:
		return "IoError"
	case KindShortRead:
		return "ShortRead"
	case KindShortWrite:
		return "ShortWrite"
	case KindBadMagic:
		return "BadMagic"
	case KindInconsistentTlv:
		return "InconsistentTlv"
	case KindBadTlvLength:
		return "BadTlvLength"
	case KindMissingDigest:
		return "MissingDigest"
	case KindDigestMismatch:
		return "DigestMismatch"
	case KindFlashRead:
		return "FlashRead"
	case KindFlashErase:
		return "FlashErase"
	case KindFlashWrite:
		return "FlashWrite"
	case KindStreamRead:
		return "StreamRead"
	case KindRevertFailed:
		return "RevertFailed"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned by every package in this
// module. It carries a Kind for programmatic dispatch, a human message,
// an optional wrapped cause, and a captured stack trace for debug
// logging.
type Error struct {
	Kind       Kind
	Text       string
	Parent     error
	StackTrace []byte
}

func (e *Error) Error() string {
	return e.Text
}

func (e *Error) Unwrap() error {
	return e.Parent
}

func capture() []byte {
	buf := make([]byte, 65536)
	n := runtime.Stack(buf, false)
	return buf[:n]
}

// New builds a bare Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:       kind,
		Text:       fmt.Sprintf(format, args...),
		StackTrace: capture(),
	}
}

// Wrap attaches kind and a message to an existing error, preserving it
// as the Parent, reachable through Unwrap for errors.Is / errors.As.
func Wrap(kind Kind, parent error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:       kind,
		Text:       fmt.Sprintf(format, args...),
		Parent:     errors.WithStack(parent),
		StackTrace: capture(),
	}
}

// KindOf extracts the Kind carried by err, or KindUnknown if err is nil
// or not one of ours.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var sdErr *Error
	if errors.As(err, &sdErr) {
		return sdErr.Kind
	}
	return KindUnknown
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Cause returns github.com/pkg/errors.Cause(err): it follows Cause()
// methods and stops at the first error without one. *Error has no
// Cause() method, so an *Error (outermost or reached through pkg/errors
// wrappers) is returned itself, not its Parent.
func Cause(err error) error {
	return errors.Cause(err)
}
