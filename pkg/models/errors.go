package models

import (
	"errors"
	"strings"
)

// ErrUnsupported is returned by entry points that the current host cannot serve.
var ErrUnsupported = errors.New("operation not supported on this host")

// DeclarationError reports that a benchmark target is declared in a way that
// cannot be benchmarked, as opposed to an infrastructure failure.
type DeclarationError struct {
	Target string
	Member string
	Reason string
}

// NewDeclarationError builds a DeclarationError for target (and optionally one
// of its members).
func NewDeclarationError(target, member, reason string) *DeclarationError {
	return &DeclarationError{Target: target, Member: member, Reason: reason}
}

func (e *DeclarationError) Error() string {
	var b strings.Builder
	b.WriteString("benchmark ")
	b.WriteString(e.Target)
	if e.Member != "" {
		b.WriteString(".")
		b.WriteString(e.Member)
	}
	b.WriteString(" is invalid: ")
	b.WriteString(e.Reason)
	return b.String()
}

// AsDeclarationError unwraps err looking for a DeclarationError.
func AsDeclarationError(err error) (*DeclarationError, bool) {
	var declErr *DeclarationError
	if errors.As(err, &declErr) {
		return declErr, true
	}
	return nil, false
}
