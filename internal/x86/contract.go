package x86

import "fmt"

// ContractError is the panic value raised when a caller breaks one of the
// construction rules of this package or of the emitter built on top of it
// (an index on a rip-relative address, an unknown label handle, operands
// that cannot agree on a size, ...).
//
// It is deliberately not returned as an error: the only recoverable failure
// of the emission layer is a failing output sink.
type ContractError struct {
	Op      string
	Message string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Violate panics with a *ContractError.
func Violate(op, format string, args ...any) {
	panic(&ContractError{Op: op, Message: fmt.Sprintf(format, args...)})
}
