package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a business-rule failure.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuth
	KindPermission
	KindNotFound
	KindConflict
	KindGone
	KindPolicy
	KindTooManyRequests
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGone:
		return "gone"
	case KindPolicy:
		return "policy"
	case KindTooManyRequests:
		return "too_many_requests"
	}
	return "unknown"
}

// Error is a categorized failure returned by service operations.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error of the same kind. An empty target message
// matches any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Kind sentinels for errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrAuth            = &Error{Kind: KindAuth}
	ErrPermission      = &Error{Kind: KindPermission}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrGone            = &Error{Kind: KindGone}
	ErrPolicy          = &Error{Kind: KindPolicy}
	ErrTooManyRequests = &Error{Kind: KindTooManyRequests}
)

func validationErr(format string, args ...any) error { return newError(KindValidation, format, args...) }
func authErr(format string, args ...any) error       { return newError(KindAuth, format, args...) }
func permissionErr(format string, args ...any) error { return newError(KindPermission, format, args...) }
func notFoundErr(format string, args ...any) error   { return newError(KindNotFound, format, args...) }
func conflictErr(format string, args ...any) error   { return newError(KindConflict, format, args...) }
func goneErr(format string, args ...any) error       { return newError(KindGone, format, args...) }
func policyErr(format string, args ...any) error     { return newError(KindPolicy, format, args...) }

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
