package cardledger

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures. The kind of an error is stable and is
// what callers branch on; the message is for humans.
type Kind string

const (
	// KindNotFound means the card or card type does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindInvalidArgument means the request itself is malformed.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	// KindInvalidState means the card status forbids the operation.
	KindInvalidState Kind = "INVALID_STATE"
	// KindInsufficientBalance means the operation would drive a balance negative.
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
)

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
)

// Error is a ledger failure raised by the balance engine or the lifecycle
// controller.
type Error struct {
	Kind    Kind
	Op      string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("cardledger: %s: %s", e.Op, e.Message)
	case e.Message != "":
		return "cardledger: " + e.Message
	default:
		return "cardledger: " + string(e.Kind)
	}
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" when err is not a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func notFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

func invalidArgument(op, format string, args ...any) *Error {
	return newError(KindInvalidArgument, op, format, args...)
}

func invalidState(op, format string, args ...any) *Error {
	return newError(KindInvalidState, op, format, args...)
}

func insufficientBalance(op, format string, args ...any) *Error {
	return newError(KindInsufficientBalance, op, format, args...)
}
