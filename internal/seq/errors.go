package seq

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes sequence-definition errors.
type ErrorCode string

const (
	// ErrCodeInvalidDefinition indicates an incomplete or inconsistent
	// entity definition (missing name, negative length, bad kind).
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"

	// ErrCodeDuplicateName indicates a name collision between windows,
	// jumps, channels, or variables.
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"

	// ErrCodeUnresolvedReference indicates a reference to an entity
	// that does not exist in the sequence.
	ErrCodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeRecursiveReference indicates time points that depend on
	// each other in a circular fashion.
	ErrCodeRecursiveReference ErrorCode = "RECURSIVE_REFERENCE"

	// ErrCodeWindowOverlap indicates overlapping time windows on one
	// output channel.
	ErrCodeWindowOverlap ErrorCode = "WINDOW_OVERLAP"

	// ErrCodeRangeOverlap indicates overlapping count ranges in a
	// jump's conditions.
	ErrCodeRangeOverlap ErrorCode = "RANGE_OVERLAP"

	// ErrCodeTimeCollision indicates two jumps, or a jump and a window
	// edge, scheduled at the same sequence time in some variant.
	ErrCodeTimeCollision ErrorCode = "TIME_COLLISION"

	// ErrCodeOutOfBounds indicates a time point outside the sequence.
	ErrCodeOutOfBounds ErrorCode = "OUT_OF_BOUNDS"

	// ErrCodeNoTerminator indicates a jump graph from which no
	// terminating instruction is reachable.
	ErrCodeNoTerminator ErrorCode = "NO_TERMINATOR"

	// ErrCodeUnknownVariable indicates a control variable that cannot
	// be resolved for a variant.
	ErrCodeUnknownVariable ErrorCode = "UNKNOWN_VARIABLE"
)

// Error is a sequence-definition error. It always names the entity the
// problem is attributable to, so callers can surface it to whoever wrote
// the sequence rather than working around it.
type Error struct {
	Code    ErrorCode
	Entity  string // offending window/jump/channel/variable name
	Variant int    // variant the problem was detected in, -1 if variant-independent
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Variant >= 0 {
		return fmt.Sprintf("%s: %s (entity=%q, variant=%d)", e.Code, e.Message, e.Entity, e.Variant)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s (entity=%q)", e.Code, e.Message, e.Entity)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, entity, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Entity:  entity,
		Variant: -1,
		Message: fmt.Sprintf(format, args...),
	}
}

// inVariant tags an error with the variant it was detected in.
func (e *Error) inVariant(variant int) *Error {
	e.Variant = variant
	return e
}

// IsSequenceError reports whether err is a sequence-definition error,
// as opposed to a compiler-internal one. Uses errors.As to handle
// wrapped errors.
func IsSequenceError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
