// Package taskerr defines the error kinds shared across the scheduling core.
//
// The taxonomy is deliberately small:
//
//   - Validation: malformed or missing input; fail fast, never retried.
//   - NotFound: the target is absent; disarm paths treat this as success.
//   - ChannelDelivery: one notification channel failed; isolated, logged.
//   - TemplateExpansion: one template failed to expand; isolated, logged.
//   - Internal: unexpected backend failure; propagated where no safe
//     partial result exists.
package taskerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindChannelDelivery
	KindTemplateExpansion
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindChannelDelivery:
		return "channel_delivery"
	case KindTemplateExpansion:
		return "template_expansion"
	default:
		return "internal"
	}
}

// Error carries a kind alongside a message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind via the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func ChannelDelivery(channel string, err error) error {
	return &Error{Kind: KindChannelDelivery, Msg: "channel " + channel + " failed", Err: err}
}

func TemplateExpansion(templateID string, err error) error {
	return &Error{Kind: KindTemplateExpansion, Msg: "template " + templateID + " failed", Err: err}
}

func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// KindOf extracts the kind, defaulting to internal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
