package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures so handlers can decide between rejecting,
// redriving and swallowing them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuth is a missing or invalid request signature
	KindAuth
	// KindMalformedPayload is an unparseable body or missing fields
	KindMalformedPayload
	// KindStorage is a connection, query or insert failure
	KindStorage
	// KindDownstreamCallback is a failed POST to a response_url
	KindDownstreamCallback
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindMalformedPayload:
		return "malformed_payload"
	case KindStorage:
		return "storage"
	case KindDownstreamCallback:
		return "downstream_callback"
	default:
		return "unknown"
	}
}

// ErrDuplicate is returned by stores when a record with the same event ID
// already exists.
var ErrDuplicate = errors.New("duplicate record")

// Error carries a Kind alongside the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with the given kind and operation name
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Auth, Malformed, Storage and Callback are shorthands for E.
func Auth(op string, err error) error      { return E(KindAuth, op, err) }
func Malformed(op string, err error) error { return E(KindMalformedPayload, op, err) }
func Storage(op string, err error) error   { return E(KindStorage, op, err) }
func Callback(op string, err error) error  { return E(KindDownstreamCallback, op, err) }

// KindOf returns the Kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
