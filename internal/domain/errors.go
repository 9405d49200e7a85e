package domain

import "errors"

// ErrorKind classifies errors surfaced to the originating connection.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindCapacity
	KindNameConflict
	KindTooLong
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	case KindNameConflict:
		return "name_conflict"
	case KindTooLong:
		return "too_long"
	default:
		return "unknown"
	}
}

// Error carries a kind and the human-readable message sent to the client.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is matches any *Error of the same kind, so errors.Is(err, ErrCapacity)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation   = &Error{Kind: KindValidation, Msg: "validation error"}
	ErrNotFound     = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrCapacity     = &Error{Kind: KindCapacity, Msg: "room is full"}
	ErrNameConflict = &Error{Kind: KindNameConflict, Msg: "name conflict"}
	ErrTooLong      = &Error{Kind: KindTooLong, Msg: "too long"}
)

func Validation(msg string) error   { return &Error{Kind: KindValidation, Msg: msg} }
func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Capacity(msg string) error     { return &Error{Kind: KindCapacity, Msg: msg} }
func NameConflict(msg string) error { return &Error{Kind: KindNameConflict, Msg: msg} }
func TooLong(msg string) error      { return &Error{Kind: KindTooLong, Msg: msg} }

// KindOf returns the kind of err, or 0 when err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// PublicMessage returns the text that may be shown to a client.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return "Internal error"
}
