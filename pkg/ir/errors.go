package ir

import (
	"errors"
	"fmt"
)

// ErrBytecodeInconsistency marks evidence of mis-decoded input. It is
// fatal for the method being processed but not for the run.
var ErrBytecodeInconsistency = errors.New("bytecode inconsistency")

// ErrUnstructurable marks input whose regions cannot be nested
var ErrUnstructurable = errors.New("unstructurable")

// InconsistencyKind classifies an InconsistencyError
type InconsistencyKind int

const (
	KindStackDepth InconsistencyKind = iota
	KindStackUnderflow
	KindOverlappingRanges
	KindBadOperand
	KindBadTarget
	KindUnsupported
)

func (k InconsistencyKind) String() string {
	switch k {
	case KindStackDepth:
		return "stack depth mismatch"
	case KindStackUnderflow:
		return "stack underflow"
	case KindOverlappingRanges:
		return "overlapping exception ranges"
	case KindBadOperand:
		return "bad operand"
	case KindBadTarget:
		return "bad branch target"
	}
	return "unsupported instruction"
}

// InconsistencyError reports a bytecode inconsistency with enough
// context to diagnose it.
type InconsistencyError struct {
	Kind     InconsistencyKind
	Offset   int
	Expected int
	Actual   int
	Detail   string
}

func (e *InconsistencyError) Error() string {
	switch e.Kind {
	case KindStackDepth:
		return fmt.Sprintf("offset %d: %s: expected %d, got %d", e.Offset, e.Kind, e.Expected, e.Actual)
	}
	if e.Detail != "" {
		return fmt.Sprintf("offset %d: %s: %s", e.Offset, e.Kind, e.Detail)
	}
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Kind)
}

// Is matches ErrBytecodeInconsistency, and ErrUnstructurable for
// overlapping ranges.
func (e *InconsistencyError) Is(target error) bool {
	if target == ErrBytecodeInconsistency {
		return true
	}
	return target == ErrUnstructurable && e.Kind == KindOverlappingRanges
}

// ContractViolation is the panic value raised when a pass misuses the IR.
// It is never recovered.
type ContractViolation struct {
	Op   string
	What string
}

func (c ContractViolation) Error() string {
	return fmt.Sprintf("ir contract violation: %s on %s", c.Op, c.What)
}
