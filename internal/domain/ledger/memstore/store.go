// Package memstore is an in-process ledger store with per-entity locks.
// It backs development runs without Postgres and the concurrency tests.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/catalog"
	"github.com/kudos/kudos-api/internal/domain/ledger"
)

// Steps that can be made to fail with FailStep.
const (
	StepBegin          = "begin"
	StepLockAccount    = "lock_account"
	StepLockItems      = "lock_items"
	StepApplyBalance   = "apply_balance"
	StepDecrementStock = "decrement_stock"
	StepInsertRecord   = "insert_record"
	StepInsertOrder    = "insert_order"
	StepCommit         = "commit"
)

// Order is a stored purchase order.
type Order struct {
	ID        uuid.UUID
	RecordID  int64
	AccountID uuid.UUID
	Lines     json.RawMessage
	Shipping  json.RawMessage
	CreatedAt time.Time
}

// entityLock is a mutex that can be abandoned when ctx ends.
type entityLock chan struct{}

func newEntityLock() entityLock { return make(entityLock, 1) }

func (l entityLock) acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l entityLock) release() { <-l }

type accountEntry struct {
	lock entityLock
	acct account.Account
}

type itemEntry struct {
	lock entityLock
	item catalog.Item
}

type fault struct {
	remaining int
	err       error
}

// Store keeps accounts, items, records and orders in memory. Entity locks
// serialize writers per account and per item; committed effects are applied
// under one write lock so readers never see a half-applied unit.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*accountEntry
	items    map[uuid.UUID]*itemEntry
	records  []*ledger.TransactionRecord
	orders   []Order
	nextID   int64

	faultMu sync.Mutex
	faults  map[string]*fault

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*accountEntry),
		items:    make(map[uuid.UUID]*itemEntry),
		faults:   make(map[string]*fault),
		now:      time.Now,
	}
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(a account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.accounts[a.ID]; ok {
		e.acct = a
		return
	}
	s.accounts[a.ID] = &accountEntry{lock: newEntityLock(), acct: a}
}

// PutItem inserts or replaces a catalog item.
func (s *Store) PutItem(it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[it.ID]; ok {
		e.item = it
		return
	}
	s.items[it.ID] = &itemEntry{lock: newEntityLock(), item: it}
}

// Seed is the JSON shape accepted by LoadSeed.
type Seed struct {
	Accounts []account.Account `json:"accounts"`
	Items    []catalog.Item    `json:"items"`
}

// LoadSeed reads accounts and items from r.
func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, a := range seed.Accounts {
		s.PutAccount(a)
	}
	for _, it := range seed.Items {
		s.PutItem(it)
	}
	return nil
}

// FailStep makes the next times calls of step return err wrapped as a
// storage failure.
func (s *Store) FailStep(step string, times int, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[step] = &fault{remaining: times, err: err}
}

func (s *Store) injected(step string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	f, ok := s.faults[step]
	if !ok || f.remaining == 0 {
		return nil
	}
	f.remaining--
	return ledger.StorageError(step, f.err)
}

// Records returns committed records in insertion order.
func (s *Store) Records() []*ledger.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ledger.TransactionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Orders returns committed orders in insertion order.
func (s *Store) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Stock returns an item's committed stock.
func (s *Store) Stock(itemID uuid.UUID) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[itemID]
	if !ok {
		return 0, false
	}
	return e.item.Stock, true
}

// Begin opens a unit of work.
func (s *Store) Begin(ctx context.Context) (ledger.UnitOfWork, error) {
	if err := s.injected(StepBegin); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, ledger.StorageError(StepBegin, err)
	}
	return &unit{s: s, stock: make(map[uuid.UUID]int64)}, nil
}

// GetBalance returns the committed balance of an account.
func (s *Store) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[accountID]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	return e.acct.Balance, nil
}

// ListTransactions filters committed records newest first.
func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]*ledger.TransactionRecord, error) {
	s.mu.RLock()
	matched := make([]*ledger.TransactionRecord, 0)
	for _, rec := range s.records {
		if filter.Matches(rec) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Offset >= len(matched) {
		return []*ledger.TransactionRecord{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// LatestRecordID returns the highest committed record id.
func (s *Store) LatestRecordID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest int64
	for _, rec := range s.records {
		if rec.ID > latest {
			latest = rec.ID
		}
	}
	return latest, nil
}

// GetByID implements account.Repository.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	a := e.acct
	return &a, nil
}

// ListCompanyAdmins implements account.Repository.
func (s *Store) ListCompanyAdmins(ctx context.Context, companyID uuid.UUID) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	admins := make([]*account.Account, 0)
	for _, e := range s.accounts {
		if !e.acct.InCompany(companyID) {
			continue
		}
		for _, role := range account.AdminRoles {
			if e.acct.Role == role {
				a := e.acct
				admins = append(admins, &a)
				break
			}
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].ID.String() < admins[j].ID.String() })
	return admins, nil
}

// GetByIDs implements catalog.Repository.
func (s *Store) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*catalog.Item, len(ids))
	for _, id := range ids {
		if e, ok := s.items[id]; ok {
			it := e.item
			out[id] = &it
		}
	}
	return out, nil
}

var (
	_ ledger.Store       = (*Store)(nil)
	_ ledger.Reader      = (*Store)(nil)
	_ account.Repository = (*Store)(nil)
	_ catalog.Repository = (*Store)(nil)
)

var (
	errGuard = errors.New("guard rejected locked row")
	errDone  = errors.New("unit already finished")
)
