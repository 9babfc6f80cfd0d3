package ledger

import (
	"context"

	"github.com/google/uuid"
)

// AccountState is a locked snapshot of an account row.
type AccountState struct {
	ID        uuid.UUID
	CompanyID *uuid.UUID
	Balance   int64
}

// ItemState is a locked snapshot of a catalog row.
type ItemState struct {
	ID        uuid.UUID
	UnitPrice int64
	Stock     int64
}

// Store opens atomic units of work.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork holds exclusive locks from the moment they are taken until
// Commit or Rollback. Effects become visible only on Commit.
//
// LockAccount returns ErrAccountNotFound for a missing account. LockItems
// must be called with ids in ascending order; missing ids are absent from
// the result. Rollback after Commit is a no-op.
type UnitOfWork interface {
	LockAccount(ctx context.Context, id uuid.UUID) (*AccountState, error)
	LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ItemState, error)
	ApplyBalance(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error)
	DecrementStock(ctx context.Context, itemID uuid.UUID, quantity int64) error
	InsertRecord(ctx context.Context, rec *TransactionRecord) error
	InsertOrder(ctx context.Context, recordID int64, accountID uuid.UUID, order *OrderAttachment) error
	Commit() error
	Rollback() error
}

// Reader serves lock-free history and balance reads.
type Reader interface {
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*TransactionRecord, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	// LatestRecordID returns the highest committed record id, 0 when empty.
	LatestRecordID(ctx context.Context) (int64, error)
}
