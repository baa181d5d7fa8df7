// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fault defines the fabric's closed set of error kinds and the
// sentinel values components wrap with fmt.Errorf("...: %w", err) at each
// boundary so callers can still errors.Is against the kind.
package fault

import (
	"errors"

	cockroacherrors "github.com/cockroachdb/errors"
)

// Kind discriminates the abstract error categories every surfaced fault
// belongs to.
type Kind uint8

const (
	// Protocol covers framing errors, version mismatch, malformed waves.
	Protocol Kind = iota
	// Auth covers knock rejection and certificate validation failures.
	Auth
	// Addressing covers unknown points, unsupported kinds, missing wrangles.
	Addressing
	// Timeout covers expired exchange deadlines.
	Timeout
	// Transport covers a closed or unavailable hyperlane.
	Transport
	// Handler covers a particle's core signaling a fault.
	Handler
	// Internal covers invariant violations that escalate the owning star's
	// status to Panic.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "Protocol"
	case Auth:
		return "Auth"
	case Addressing:
		return "Addressing"
	case Timeout:
		return "Timeout"
	case Transport:
		return "Transport"
	case Handler:
		return "Handler"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per Kind, for use with errors.Is after %w wrapping.
var (
	ErrProtocol   = errors.New("fault: protocol error")
	ErrAuth       = errors.New("fault: auth error")
	ErrAddressing = errors.New("fault: addressing error")
	ErrTimeout    = errors.New("fault: timeout")
	ErrTransport  = errors.New("fault: transport error")
	ErrHandler    = errors.New("fault: handler error")
	ErrInternal   = errors.New("fault: internal error")
)

// Sentinel returns the sentinel error for k.
func Sentinel(k Kind) error {
	switch k {
	case Protocol:
		return ErrProtocol
	case Auth:
		return ErrAuth
	case Addressing:
		return ErrAddressing
	case Timeout:
		return ErrTimeout
	case Transport:
		return ErrTransport
	case Handler:
		return ErrHandler
	default:
		return ErrInternal
	}
}

// WrapInternal wraps err as an Internal-kind fault, escalating the owning
// star's status to Panic. Unlike the other kinds (plain fmt.Errorf("%w")
// at the call site), Internal faults use cockroachdb/errors so the wrap
// carries a stack trace and survives re-wrapping across goroutine/RPC
// boundaries while errors.Is(result, ErrInternal) still holds.
func WrapInternal(err error, msg string) error {
	return cockroacherrors.Mark(cockroacherrors.Wrapf(err, "%s", msg), ErrInternal)
}

// Status maps a Kind to the HTTP-style status a ReflectedCore carries when
// the fault is recoverable and reflects to the origin.
func Status(k Kind) int {
	switch k {
	case Protocol:
		return 400
	case Auth:
		return 403
	case Addressing:
		return 404
	case Timeout:
		return 408
	case Transport:
		return 503
	case Handler:
		return 500
	default:
		return 500
	}
}
