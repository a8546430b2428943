package pricing

import (
	"errors"
	"fmt"
)

// Kind classifies a pricing error for per-item reporting.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: instrument, provider or assignment absent.
	KindNotFound
	// KindInvalidConfiguration: bad provider params or a broken rate schedule.
	KindInvalidConfiguration
	// KindProviderUnavailable: network or upstream failure.
	KindProviderUnavailable
	// KindNoData: nothing available for the requested date or range.
	KindNoData
	// KindUnsupported: operation not implemented by a provider.
	KindUnsupported
	// KindTimeout: caller-imposed batch deadline exceeded.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindNoData:
		return "no_data"
	case KindUnsupported:
		return "unsupported"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the typed error carried in per-item results. It wraps an optional
// cause so callers can still use errors.Is against sentinel errors.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a typed Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
