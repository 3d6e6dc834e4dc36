package domain

import (
	"context"
	"errors"
	"net"
)

// ErrorKind tells the controller how to react to a failure.
type ErrorKind int

const (
	// KindUnexpected is anything unclassified. Logged and reported; the
	// poll loop keeps going.
	KindUnexpected ErrorKind = iota
	// KindTransient covers network trouble, timeouts and broker-side
	// throttling or outages.
	KindTransient
	// KindInconsistency covers bookkeeping mismatches that have a defined
	// fallback.
	KindInconsistency
	// KindFatal aborts startup.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindInconsistency:
		return "inconsistency"
	case KindFatal:
		return "fatal"
	default:
		return "unexpected"
	}
}

// KindOf classifies err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnexpected
	}

	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrLockHeld):
		return KindFatal
	case errors.Is(err, ErrOversold), errors.Is(err, ErrNoLevels):
		return KindInconsistency
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrBrokerUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnexpected
}
