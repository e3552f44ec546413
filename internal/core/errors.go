package core

import (
	"errors"
	"fmt"
)

// ValidationError rejects input before any write happens.
type ValidationError struct {
	Field string
	Err   error
}

func NewValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %v", e.Err)
	}
	return fmt.Sprintf("validation: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConsistencyError means a mutation referenced state that does not exist or
// no longer matches. It aborts the enclosing transaction.
type ConsistencyError struct {
	Entity string
	ID     int64
	Err    error
}

func NewConsistencyError(entity string, id int64, err error) error {
	return &ConsistencyError{Entity: entity, ID: id, Err: err}
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency: %s %d: %v", e.Entity, e.ID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// RowError is a single failed CSV row. Imports collect them instead of aborting.
type RowError struct {
	Row  int
	Line string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// TransactionFailure wraps any error raised inside an atomic fan-out after
// the transaction has been rolled back.
type TransactionFailure struct {
	Op  string
	Err error
}

func (e *TransactionFailure) Error() string {
	return fmt.Sprintf("%s rolled back: %v", e.Op, e.Err)
}

func (e *TransactionFailure) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

func IsTransactionFailure(err error) bool {
	var tf *TransactionFailure
	return errors.As(err, &tf)
}
