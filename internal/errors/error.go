// Package errors defines the core's error kinds (spec.md §7) as a typed
// wrapper, generalizing the teacher's sentinel-error pattern so the driver
// and worker pool can branch on a request's failure kind programmatically.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies one of spec.md §7's error kinds.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindHTTPNonSuccess
	KindTimeout
	KindConsecutiveErrorLimit
	KindPhaseErrorRate
	KindMissingObject
	KindShardCrash
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPNonSuccess:
		return "http_non_success"
	case KindTimeout:
		return "timeout"
	case KindConsecutiveErrorLimit:
		return "consecutive_error_limit"
	case KindPhaseErrorRate:
		return "phase_error_rate"
	case KindMissingObject:
		return "missing_object"
	case KindShardCrash:
		return "shard_crash"
	default:
		return "none"
	}
}

var (
	ErrMissingObject      = errors.New("test object does not exist and could not be created")
	ErrConfigNotSet       = errors.New("required configuration value is not set")
	ErrInsufficientData   = errors.New("no records available to compute statistics")
)

// KindError wraps an underlying error with a classification kind.
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// Wrap classifies err under kind, returning nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// ClassOf extracts the Kind carried by err, or KindNone if err does not carry one.
func ClassOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindNone
}

// ConfigNotSetError reports that a required environment variable is unset.
func ConfigNotSetError(name string) error {
	return fmt.Errorf("%w: %s must be set", ErrConfigNotSet, name)
}
