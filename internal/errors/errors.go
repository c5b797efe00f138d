// Package errors provides the daemon's error taxonomy: a small set of
// codes distinguishing what happened from what should happen in response.
//
// Usage:
//
//	// At startup - fatal errors propagate to the exit path
//	if _, err := roots.Resolve(paths, nil); err != nil {
//	    return errors.Wrap(err, errors.CodeConfig, "invalid root")
//	}
//
//	// In long-running loops - transient errors are logged and swallowed
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) && domainErr.Code == errors.CodeTransient {
//	    log.Warn("skipping", "error", domainErr)
//	    continue
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code classifies an error by how the daemon must respond to it, per the
// propagation policy: only configuration, resource and peer errors are
// fatal at startup; everything else is logged and the operation skipped.
type Code string

const (
	// CodeConfig marks an invalid path, non-directory root, un-canonicalizable
	// path, or no roots left after deduplication. Fatal at startup.
	CodeConfig Code = "CONFIG"
	// CodeResource marks a kernel notification init or socket bind/listen
	// failure. Fatal at startup.
	CodeResource Code = "RESOURCE"
	// CodePeer marks a live instance already holding the PID file. Fatal at
	// startup.
	CodePeer Code = "PEER"
	// CodeTransient marks an individual event-parse failure, an unreadable
	// file, a failed flush, or a stale PID file. Logged, operation skipped.
	CodeTransient Code = "TRANSIENT"
	// CodeProtocol marks an oversize request field or a malformed regex.
	// A single-line error is written to the client and the connection closed.
	CodeProtocol Code = "PROTOCOL"
	// CodeFatal marks a memory-safety trap. Best-effort cleanup, then
	// re-raise the default handler.
	CodeFatal Code = "FATAL"
)

// ExitCode returns the process exit code associated with a startup-fatal
// code, or -1 if the code does not terminate the process.
func (c Code) ExitCode() int {
	switch c {
	case CodeConfig, CodeResource, CodePeer:
		return 1
	default:
		return -1
	}
}

// Fatal reports whether an error of this code must abort startup.
func (c Code) Fatal() bool {
	return c.ExitCode() >= 0
}

// Error is a daemon error carrying a Code and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New constructors for each error kind.

func Config(msg string) *Error    { return &Error{Code: CodeConfig, Message: msg} }
func Resource(msg string) *Error  { return &Error{Code: CodeResource, Message: msg} }
func Peer(msg string) *Error      { return &Error{Code: CodePeer, Message: msg} }
func Transient(msg string) *Error { return &Error{Code: CodeTransient, Message: msg} }
func Protocol(msg string) *Error  { return &Error{Code: CodeProtocol, Message: msg} }
func Fatal(msg string) *Error     { return &Error{Code: CodeFatal, Message: msg} }

// Configf, Resourcef, etc. create an error with a formatted message.

func Configf(format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}

func Resourcef(format string, args ...any) *Error {
	return &Error{Code: CodeResource, Message: fmt.Sprintf(format, args...)}
}

func Transientf(format string, args ...any) *Error {
	return &Error{Code: CodeTransient, Message: fmt.Sprintf(format, args...)}
}

func Protocolf(format string, args ...any) *Error {
	return &Error{Code: CodeProtocol, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf attaches a code and formatted message to an underlying error.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
