// Copyright 2024-2026 Aiku AI

package importer

import (
	"errors"
	"fmt"
)

// Failure classes. Everything except ErrTransportFatal is local to one
// message (or one attachment) and never stops the run.
var (
	// ErrCapacityExceeded means a message cannot be represented within
	// the configured fragment/payload ceilings. The message is recorded
	// as failed and skipped.
	ErrCapacityExceeded = errors.New("message exceeds destination capacity")
	// ErrTransportFatal means the destination connection itself is
	// unusable (bad credentials, revoked token). Aborts the run.
	ErrTransportFatal = errors.New("fatal transport error")
)

// TransportErrorKind classifies a failed send or upload.
type TransportErrorKind int

const (
	TransportRateLimited TransportErrorKind = iota
	TransportPayloadRejected
	TransportTransientNetwork
	TransportAuth
)

func (k TransportErrorKind) String() string {
	switch k {
	case TransportRateLimited:
		return "rate_limited"
	case TransportPayloadRejected:
		return "payload_rejected"
	case TransportTransientNetwork:
		return "transient_network"
	case TransportAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// TransportError is the typed error returned by Transport implementations.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e.Kind == TransportAuth {
		return ErrTransportFatal
	}
	return e.Err
}

// Retryable reports whether resending the same payload may succeed.
func (e *TransportError) Retryable() bool {
	return e.Kind == TransportRateLimited || e.Kind == TransportTransientNetwork
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable()
}
