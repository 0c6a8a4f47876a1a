package common

import "errors"

// Kind classifies why an operation was rejected.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindPrecondition
	KindEconomic
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindEconomic:
		return "economic"
	default:
		return "unknown"
	}
}

// Error is a rejected operation. Instances are declared as package-level
// sentinels and compared with errors.Is.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Is matches the same sentinel or, for the bare kind sentinels below, any error
// of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.msg == "" && t.Kind == e.Kind
}

// NewError declares a sentinel error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrPrecondition  = &Error{Kind: KindPrecondition}
	ErrEconomic      = &Error{Kind: KindEconomic}
)

// KindOf extracts the classification of err, or KindUnknown for storage and
// codec failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	ErrUnauthorized        = NewError(KindAuthorization, "caller not authorized")
	ErrInvalidAmount       = NewError(KindValidation, "amount must not be negative")
	ErrNonPositiveAmount   = NewError(KindValidation, "amount must be positive")
	ErrInsufficientBalance = NewError(KindEconomic, "insufficient balance")
	ErrAccountFrozen       = NewError(KindEconomic, "account frozen")
)
