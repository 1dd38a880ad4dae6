package capability

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a capability failure
type Kind string

// Failure kinds reported by capability ports
const (
	KindNavigation        Kind = "navigation"
	KindExtractionTimeout Kind = "extraction_timeout"
	KindScript            Kind = "script"
	KindInference         Kind = "inference"
	KindNotFound          Kind = "not_found"
	KindTransfer          Kind = "transfer"
	KindTimeout           Kind = "timeout"
)

// Error is returned by every capability port. Op names the call that failed (e.g. "navigate").
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

// Sentinels for errors.Is. An *Error matches a sentinel of the same Kind.
var (
	ErrNavigation        = &Error{Kind: KindNavigation}
	ErrExtractionTimeout = &Error{Kind: KindExtractionTimeout}
	ErrScript            = &Error{Kind: KindScript}
	ErrInference         = &Error{Kind: KindInference}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrTransfer          = &Error{Kind: KindTransfer}
	ErrTimeout           = &Error{Kind: KindTimeout}
)

// NewError builds a capability error.
func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	prefix := string(e.Kind) + " error"
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Message == "" && t.Cause == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// KindOf returns the kind of the first capability error in err's chain, or "" if there is none.
// Context deadline errors report KindTimeout.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// IsTimeout reports whether err is any flavour of capability timeout.
func IsTimeout(err error) bool {
	k := KindOf(err)
	return k == KindTimeout || k == KindExtractionTimeout
}
