package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrLockHeld          = errors.New("lock already held")
	ErrPositionTerminal  = errors.New("position is in a terminal state")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrTickInProgress    = errors.New("monitoring tick already in progress")
	ErrInvalidVault      = errors.New("invalid vault address")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrUnknownDirection  = errors.New("unknown direction")
	ErrInvalidPercentage = errors.New("invalid exit percentage")
	ErrMaxPositions      = errors.New("max concurrent positions reached")
)

// ValidationError rejects a malformed signal before admission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a store failure. In-memory state stays authoritative.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExecutionError wraps a failed swap. The exit condition is re-evaluated on
// the next tick.
type ExecutionError struct {
	PositionID string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution: position %s: %v", e.PositionID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// RecoveryError is collected per record during recovery.
type RecoveryError struct {
	RecordID string
	Err      error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recovery: record %s: %v", e.RecordID, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }
