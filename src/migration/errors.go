package migration

import (
	"errors"
	"fmt"
)

// ErrorKind classifies migration errors.
type ErrorKind uint32

const (
	// UnknownToken is a resume token with no live migration. The resume
	// handshake is rejected and nothing is changed.
	UnknownToken ErrorKind = iota
	// TokenCollision is a generated token already in use. It never reaches
	// the client; registration regenerates the token.
	TokenCollision
	// InvariantViolation is a protocol logic error that should be unreachable.
	// Callers must fail safe, i.e. treat the message as not suppressible.
	InvariantViolation
	// AbortedMigration is a migration abandoned before the flip. The client
	// stays on the source, unaffected.
	AbortedMigration
	// UnknownClient is a client with no live migration.
	UnknownClient
	// ClientBusy is a client that is already migrating.
	ClientBusy
	// BadState is an event that does not apply to the current state.
	BadState
	// BadToken is a confirm token that does not match.
	BadToken
)

var kindNames = []string{
	"Unknown Token",
	"Token Collision",
	"Invariant Violation",
	"Aborted Migration",
	"Unknown Client",
	"Client Busy",
	"Bad State",
	"Bad Token",
}

// String returns the string representation of an ErrorKind
func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Error is the error type returned by this package.
type Error struct {
	kind   ErrorKind
	client string
	msg    string
}

// NewError creates a new Error
func NewError(kind ErrorKind, client string, msg string) Error {
	return Error{
		kind:   kind,
		client: client,
		msg:    msg,
	}
}

func newErrorf(kind ErrorKind, client string, format string, args ...interface{}) Error {
	return NewError(kind, client, fmt.Sprintf(format, args...))
}

// Kind returns the kind of the error.
func (e Error) Kind() ErrorKind {
	return e.kind
}

// Client returns the client the error is about, if any.
func (e Error) Client() string {
	return e.client
}

// Error implements the error interface
func (e Error) Error() string {
	if e.client == "" {
		return fmt.Sprintf("%s, %s", e.kind, e.msg)
	}
	return fmt.Sprintf("%s, %s, %s", e.client, e.kind, e.msg)
}

// Is checks that err is, or wraps, an Error of the given kind.
func Is(err error, kind ErrorKind) bool {
	var mErr Error
	return errors.As(err, &mErr) && mErr.kind == kind
}
