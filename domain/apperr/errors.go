// Package apperr defines the error kinds shared by every module. Kinds are
// translated to transport codes only at the HTTP and websocket boundaries.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindAuthentication
	KindConflict
	KindStore
)

// GenericMessage is what callers see for store and internal failures.
const GenericMessage = "Something went wrong, please try again."

var kindNames = map[Kind]string{
	KindInternal:       "internal_error",
	KindValidation:     "validation_error",
	KindNotFound:       "not_found",
	KindAuthorization:  "forbidden",
	KindAuthentication: "unauthorized",
	KindConflict:       "conflict",
	KindStore:          "store_error",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// ParseKind is the inverse of Kind.String. Unknown names map to KindInternal.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindInternal
}

// Error is a classified error with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err with a user-facing message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation, NotFound, Forbidden, Unauthenticated and Conflict are shorthands for New.
func Validation(message string) *Error      { return New(KindValidation, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Forbidden(message string) *Error       { return New(KindAuthorization, message) }
func Unauthenticated(message string) *Error { return New(KindAuthentication, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }

// Store wraps a persistence failure.
func Store(message string, err error) *Error {
	return Wrap(KindStore, message, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the message safe to show a client.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return GenericMessage
	}
	if e.Kind == KindInternal || (e.Kind == KindStore && e.Message == "") {
		return GenericMessage
	}
	return e.Message
}

// Payload is the serialized form of an Error used in request-reply responses.
type Payload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToPayload converts err for transport. A nil error yields nil.
func ToPayload(err error) *Payload {
	if err == nil {
		return nil
	}
	return &Payload{
		Kind:    KindOf(err).String(),
		Message: PublicMessage(err),
	}
}

// Err rebuilds the classified error. A nil payload yields nil.
func (p *Payload) Err() error {
	if p == nil {
		return nil
	}
	return New(ParseKind(p.Kind), p.Message)
}
