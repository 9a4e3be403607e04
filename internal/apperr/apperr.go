// Package apperr classifies the failures the earnings ledger distinguishes
// between. Callers branch on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the error classification.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthentication - bad or missing webhook signature
	KindAuthentication
	// KindValidation - payload inconsistent with itself (amount mismatch, bad quantity)
	KindValidation
	// KindNotFound - seller/product metadata or rows missing
	KindNotFound
	// KindDuplicate - session or ledger row already recorded
	KindDuplicate
	// KindPersistence - storage call failed
	KindPersistence
	// KindVerification - post-write read did not find the expected row
	KindVerification
	// KindUnconfigured - a required collaborator was not configured at startup
	KindUnconfigured
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindPersistence:
		return "persistence"
	case KindVerification:
		return "verification"
	case KindUnconfigured:
		return "unconfigured"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind without a cause.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
