// Package errs holds the error kinds shared by the trading core and its gateways.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind uint8

const (
	Unknown Kind = iota
	// DataInsufficient: not enough bars for an indicator window.
	DataInsufficient
	// ConfigInvalid: leverage, risk or other parameters out of bounds.
	ConfigInvalid
	// SizingInfeasible: zero contracts or margin above the cap.
	SizingInfeasible
	// GatewayTransient: network or rate-limit failure, safe to retry.
	GatewayTransient
	// ProtectionGap: protective stop could not be confirmed on the exchange.
	ProtectionGap
)

func (k Kind) String() string {
	switch k {
	case DataInsufficient:
		return "data_insufficient"
	case ConfigInvalid:
		return "config_invalid"
	case SizingInfeasible:
		return "sizing_infeasible"
	case GatewayTransient:
		return "gateway_transient"
	case ProtectionGap:
		return "protection_gap"
	default:
		return "unknown"
	}
}

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

func (e *Error) Unwrap() error { return e.Err }

// E builds a new error of the given kind with a formatted message.
func E(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap attaches a kind to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// KindOf returns the outermost kind found in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
