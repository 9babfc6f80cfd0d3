package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/ledger"
)

// unit stages every write and applies them together on Commit.
type unit struct {
	s    *Store
	held []entityLock
	done bool

	account      *accountEntry
	balanceAfter int64
	balanceSet   bool
	stock        map[uuid.UUID]int64
	record       *ledger.TransactionRecord
	order        *Order
}

func (u *unit) LockAccount(ctx context.Context, id uuid.UUID) (*ledger.AccountState, error) {
	if err := u.s.injected(StepLockAccount); err != nil {
		return nil, err
	}

	u.s.mu.RLock()
	e, ok := u.s.accounts[id]
	u.s.mu.RUnlock()
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}

	if err := e.lock.acquire(ctx); err != nil {
		return nil, ledger.StorageError(StepLockAccount, err)
	}
	u.held = append(u.held, e.lock)
	u.account = e

	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	return &ledger.AccountState{ID: e.acct.ID, CompanyID: e.acct.CompanyID, Balance: e.acct.Balance}, nil
}

func (u *unit) LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ledger.ItemState, error) {
	if err := u.s.injected(StepLockItems); err != nil {
		return nil, err
	}

	ordered := make([]uuid.UUID, len(ids))
	copy(ordered, ids)
	ledger.SortIDs(ordered)

	out := make(map[uuid.UUID]*ledger.ItemState, len(ordered))
	for _, id := range ordered {
		u.s.mu.RLock()
		e, ok := u.s.items[id]
		u.s.mu.RUnlock()
		if !ok {
			continue
		}
		if err := e.lock.acquire(ctx); err != nil {
			return nil, ledger.StorageError(StepLockItems, err)
		}
		u.held = append(u.held, e.lock)

		u.s.mu.RLock()
		out[id] = &ledger.ItemState{ID: e.item.ID, UnitPrice: e.item.UnitPrice, Stock: e.item.Stock}
		u.s.mu.RUnlock()
	}
	return out, nil
}

func (u *unit) ApplyBalance(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	if err := u.s.injected(StepApplyBalance); err != nil {
		return 0, err
	}
	if u.account == nil || u.account.acct.ID != accountID {
		return 0, ledger.StorageError(StepApplyBalance, errGuard)
	}

	u.s.mu.RLock()
	next := u.account.acct.Balance + delta
	u.s.mu.RUnlock()
	if next < 0 {
		return 0, ledger.StorageError(StepApplyBalance, errGuard)
	}
	u.balanceAfter = next
	u.balanceSet = true
	return next, nil
}

func (u *unit) DecrementStock(ctx context.Context, itemID uuid.UUID, quantity int64) error {
	if err := u.s.injected(StepDecrementStock); err != nil {
		return err
	}

	u.s.mu.RLock()
	e, ok := u.s.items[itemID]
	var current int64
	if ok {
		current = e.item.Stock
	}
	u.s.mu.RUnlock()

	staged := u.stock[itemID] + quantity
	if !ok || current < staged {
		return ledger.StorageError(StepDecrementStock, errGuard)
	}
	u.stock[itemID] = staged
	return nil
}

func (u *unit) InsertRecord(ctx context.Context, rec *ledger.TransactionRecord) error {
	if err := u.s.injected(StepInsertRecord); err != nil {
		return err
	}

	u.s.mu.Lock()
	u.s.nextID++
	rec.ID = u.s.nextID
	u.s.mu.Unlock()

	rec.CreatedAt = u.s.now()
	stored := *rec
	u.record = &stored
	return nil
}

func (u *unit) InsertOrder(ctx context.Context, recordID int64, accountID uuid.UUID, order *ledger.OrderAttachment) error {
	if err := u.s.injected(StepInsertOrder); err != nil {
		return err
	}
	u.order = &Order{
		ID:        order.ID,
		RecordID:  recordID,
		AccountID: accountID,
		Lines:     order.Lines,
		Shipping:  order.Shipping,
		CreatedAt: u.s.now(),
	}
	return nil
}

func (u *unit) Commit() error {
	if u.done {
		return ledger.StorageError(StepCommit, errDone)
	}
	if err := u.s.injected(StepCommit); err != nil {
		return err
	}

	u.s.mu.Lock()
	if u.balanceSet {
		u.account.acct.Balance = u.balanceAfter
	}
	for id, qty := range u.stock {
		u.s.items[id].item.Stock -= qty
	}
	if u.record != nil {
		u.s.records = append(u.s.records, u.record)
	}
	if u.order != nil {
		u.s.orders = append(u.s.orders, *u.order)
	}
	u.s.mu.Unlock()

	u.finish()
	return nil
}

func (u *unit) Rollback() error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

func (u *unit) finish() {
	u.done = true
	for i := len(u.held) - 1; i >= 0; i-- {
		u.held[i].release()
	}
	u.held = nil
}
