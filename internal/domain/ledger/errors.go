package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidIntent       = errors.New("invalid ledger intent")
	ErrAccountNotFound     = errors.New("account not found")
	ErrItemNotFound        = errors.New("catalog item not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrStorageFailure      = errors.New("ledger storage failure")

	// ErrLockContention marks storage failures caused by lock timeouts or deadlocks.
	ErrLockContention = errors.New("lock contention")
)

// InsufficientBalanceError carries the numbers a caller needs to correct the request.
type InsufficientBalanceError struct {
	AccountID uuid.UUID
	Balance   int64
	Shortfall int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, short by %d", e.Balance, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InsufficientStockError names the first item that could not be reserved.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type ItemNotFoundError struct {
	ItemID uuid.UUID
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("catalog item %s not found", e.ItemID)
}

func (e *ItemNotFoundError) Unwrap() error { return ErrItemNotFound }

// AmountMismatchError: Expected is the server-computed total, Actual the intent's debit.
type AmountMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: items total %d, intent debits %d", e.Expected, e.Actual)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidIntent, reason)
}

// StorageError wraps a storage failure for a named step.
func StorageError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, step, err)
}
