// Package errkind classifies pipeline errors into the kinds the
// Processor needs to decide retry, drop, or abort policy without
// string-matching error messages.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the export pipeline recognizes.
type Kind int

const (
	// Unknown is the zero value; an error with no explicit kind is
	// treated as batch-fatal by the Processor.
	Unknown Kind = iota
	// Transient covers RPC and DB errors worth retrying.
	Transient
	// Decode covers protobuf/key-format failures; the offending
	// record is dropped, the batch continues.
	Decode
	// ValueDecode covers UTF-8/JSON value decode failures; the raw
	// bytes are kept and the batch continues.
	ValueDecode
	// FatalConfig is raised when required configuration is missing
	// at startup.
	FatalConfig
	// FatalState classifies a missing IndexerState singleton during
	// export. No component in this module produces it:
	// watermark.Manager.Get returns a zero-value state for a missing
	// row and the first Advance inserts it.
	FatalState
	// ContractVanished is raised when a contract row disappears
	// between insert and re-read; the event is dropped and logged.
	ContractVanished
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Decode:
		return "decode"
	case ValueDecode:
		return "value_decode"
	case FatalConfig:
		return "fatal_config"
	case FatalState:
		return "fatal_state"
	case ContractVanished:
		return "contract_vanished"
	default:
		return "unknown"
	}
}

// kindError wraps an error with its Kind so callers can classify it
// with errors.As instead of inspecting message text.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return fmt.Sprintf("%s: %v", e.kind, e.err) }
func (e *kindError) Unwrap() error { return e.err }

// New wraps err with the given kind.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// AsTransient wraps err as a Transient error.
func AsTransient(err error) error { return New(Transient, err) }

// AsDecode wraps err as a Decode error.
func AsDecode(err error) error { return New(Decode, err) }

// AsValueDecode wraps err as a ValueDecode error.
func AsValueDecode(err error) error { return New(ValueDecode, err) }

// AsFatalConfig wraps err as a FatalConfig error.
func AsFatalConfig(err error) error { return New(FatalConfig, err) }

// AsFatalState wraps err as a FatalState error.
func AsFatalState(err error) error { return New(FatalState, err) }

// AsContractVanished wraps err as a ContractVanished error.
func AsContractVanished(err error) error { return New(ContractVanished, err) }

// Of returns the Kind attached to err, or Unknown if err (or any error
// in its chain) was never classified.
func Of(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Retryable reports whether err should be retried under the export
// pipeline's retry discipline (transient errors only).
func Retryable(err error) bool {
	return Of(err) == Transient
}

// Fatal reports whether err should abort the batch before the
// watermark advances.
func Fatal(err error) bool {
	switch Of(err) {
	case FatalConfig, FatalState:
		return true
	case Decode, ValueDecode, ContractVanished:
		return false
	default:
		// Unclassified errors are treated conservatively as fatal.
		return true
	}
}
