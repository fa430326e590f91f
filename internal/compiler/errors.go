package compiler

import (
	"errors"
	"fmt"
)

// Error represents a failure inside the compilation pipeline, as
// opposed to a problem with the sequence definition itself (those are
// reported as seq.Error by verification). A capacity error means the
// sequence is valid but does not fit the hardware; an internal error
// means an invariant an earlier pass was supposed to establish did not
// hold.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Jump identifies the jump being expanded, if any.
	Jump string
}

// ErrorCode categorizes compiler errors.
type ErrorCode string

const (
	// ErrCodeCapacity indicates the sequence exceeds a hardware limit:
	// too many jump conditions, too many destination ids, or not
	// enough ticks to place all instruction blocks.
	ErrCodeCapacity ErrorCode = "CAPACITY"

	// ErrCodeInternal indicates an inconsistency in the pipeline.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Jump != "" {
		return fmt.Sprintf("%s: %s (jump=%s)", e.Code, e.Message, e.Jump)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func capacityError(jump, format string, args ...any) *Error {
	return &Error{Code: ErrCodeCapacity, Jump: jump, Message: fmt.Sprintf(format, args...)}
}

func internalError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// IsCapacityError returns true if the error reports a hardware limit.
// Uses errors.As to handle wrapped errors.
func IsCapacityError(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeCapacity
	}
	return false
}

// IsInternalError returns true if the error reports a pipeline
// inconsistency. Uses errors.As to handle wrapped errors.
func IsInternalError(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeInternal
	}
	return false
}
