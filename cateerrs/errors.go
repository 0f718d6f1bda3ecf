// Package cateerrs defines the error taxonomy shared by every cate
// subsystem: ConfigurationError, MessageError, FundsError, TradeError, and
// AuditError. Each wraps go-errors/errors so handler code keeps a stack
// trace without having to capture one itself at every call site.
package cateerrs

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind identifies which of the five error categories an error belongs to.
// The CLI uses it to choose an exit code; engine handlers use it to decide
// whether a step is retriable or terminal.
type Kind string

const (
	// KindConfiguration marks a missing/malformed config or an
	// unreachable node at startup. Fatal to the process.
	KindConfiguration Kind = "configuration"

	// KindMessage marks a schema violation, bad UUID, unknown currency,
	// wrong-length hash, or a value below the chain minimum. The
	// offending message is skipped; trade state does not advance.
	KindMessage Kind = "message"

	// KindFunds marks coin selection failing to cover quantity+fee.
	KindFunds Kind = "funds"

	// KindTrade marks signature/lock-time/commitment/preimage
	// validation failures. The step aborts; the refund path recovers.
	KindTrade Kind = "trade"

	// KindAudit marks trade-store invariant violations: a slot that
	// should exist is missing, or one that should be empty is present.
	KindAudit Kind = "audit"
)

// Error is a taxonomy-tagged, stack-carrying error.
type Error struct {
	kind Kind
	err  *goerrors.Error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.err.Error())
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.err.Err
}

// Kind reports which taxonomy category this error belongs to.
func (e *Error) Kind() Kind {
	return e.kind
}

// Stack returns the formatted stack trace captured at the error site.
func (e *Error) Stack() string {
	return string(e.err.Stack())
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		kind: kind,
		err:  goerrors.Errorf(format, args...),
	}
}

// Configuration builds a KindConfiguration error.
func Configuration(format string, args ...interface{}) *Error {
	return newf(KindConfiguration, format, args...)
}

// Message builds a KindMessage error.
func Message(format string, args ...interface{}) *Error {
	return newf(KindMessage, format, args...)
}

// Funds builds a KindFunds error.
func Funds(format string, args ...interface{}) *Error {
	return newf(KindFunds, format, args...)
}

// Trade builds a KindTrade error.
func Trade(format string, args ...interface{}) *Error {
	return newf(KindTrade, format, args...)
}

// Audit builds a KindAudit error.
func Audit(format string, args ...interface{}) *Error {
	return newf(KindAudit, format, args...)
}

// Is reports whether err carries the given Kind, unwrapping along the way.
func Is(err error, kind Kind) bool {
	var ce *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			ce = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ce != nil && ce.kind == kind
}

// ExitCode maps an error to the process exit code described in spec.md §6:
// 0 on nil (success), 1 for configuration or RPC-reachability failures,
// 0 for everything else (individual trades failing validation do not
// terminate the process).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if Is(err, KindConfiguration) {
		return 1
	}
	return 0
}
