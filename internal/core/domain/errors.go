package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrTemporary              = errors.New("temporary failure")
	ErrUnknownDocumentType    = errors.New("unknown document type")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrMissingRejectionReason = errors.New("missing rejection reason")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrLedgerUnavailable      = errors.New("ledger unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindName returns a stable machine-readable name for the error kind, or
// "internal" when err carries none of the known kinds.
func KindName(err error) string {
	switch {
	case IsKind(err, ErrUnknownDocumentType):
		return "unknown_document_type"
	case IsKind(err, ErrMissingRejectionReason):
		return "missing_rejection_reason"
	case IsKind(err, ErrInvalidTransition):
		return "invalid_transition"
	case IsKind(err, ErrForbidden):
		return "forbidden"
	case IsKind(err, ErrConcurrentModification):
		return "concurrent_modification"
	case IsKind(err, ErrLedgerUnavailable):
		return "ledger_unavailable"
	case IsKind(err, ErrNotFound):
		return "not_found"
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrUnauthorized):
		return "unauthorized"
	case IsKind(err, ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}

// TransitionError reports a refused lifecycle step: which edge was attempted,
// who attempted it and what was missing.
type TransitionError struct {
	Kind      error
	RequestID string
	From      RequestStatus
	To        RequestStatus
	Roles     []Role
	Required  string
	Reason    string
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "request %s: %s -> %s refused: %v", e.RequestID, e.From, e.To, e.Kind)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Required != "" {
		roles := make([]string, 0, len(e.Roles))
		for _, r := range e.Roles {
			roles = append(roles, string(r))
		}
		sort.Strings(roles)
		fmt.Fprintf(&b, " (actor roles [%s], requires %s)", strings.Join(roles, ","), e.Required)
	}
	return b.String()
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}
