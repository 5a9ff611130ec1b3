package exchange

import (
	"errors"
	"fmt"
)

// ErrSymbolNotFound matches any SymbolNotFoundError via errors.Is.
var ErrSymbolNotFound = errors.New("symbol not found")

// AdapterError is a network or parse failure at the venue boundary.
type AdapterError struct {
	Venue string
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// SymbolNotFoundError reports that a canonical symbol has no venue mapping.
type SymbolNotFoundError struct {
	Venue  string
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %q not found on %s", e.Symbol, e.Venue)
}

func (e *SymbolNotFoundError) Is(target error) bool { return target == ErrSymbolNotFound }

// SymbolNotFound lets callers outside this package detect the condition
// without importing it.
func (e *SymbolNotFoundError) SymbolNotFound() bool { return true }

// ErrorKind classifies an error for in-band opportunity records.
func ErrorKind(err error) string {
	var snf *SymbolNotFoundError
	if errors.As(err, &snf) {
		return "SymbolNotFound"
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return "AdapterError"
	}
	return "Error"
}
