package ledger

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/pkg/logger"
)

const (
	defaultLockRetries = 3
	defaultLockBackoff = 50 * time.Millisecond
)

// Engine is the only writer of balances, stock and transaction records.
type Engine struct {
	store   Store
	retries int
	backoff time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLockRetries sets how many times lock acquisition is retried after a storage failure.
func WithLockRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// WithLockBackoff sets the base delay between lock retries. It doubles per attempt.
func WithLockBackoff(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.backoff = d
		}
	}
}

// NewEngine creates ledger engine
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		retries: defaultLockRetries,
		backoff: defaultLockBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit validates intent against freshly locked state and applies the balance
// delta, stock decrements, the transaction record and an optional order as
// one unit. Either every effect is committed or none is.
func (e *Engine) Commit(ctx context.Context, intent Intent) (*TransactionRecord, error) {
	log := logger.Component(ctx, "ledger")

	in, err := normalize(intent)
	if err != nil {
		log.Debug().Err(err).Str("account_id", intent.AccountID.String()).Msg("Rejected malformed intent")
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		rec, retryable, err := e.attempt(ctx, in)
		if err == nil {
			log.Info().
				Str("account_id", in.AccountID.String()).
				Str("cause", string(in.Cause)).
				Int64("amount", in.Amount).
				Int64("record_id", rec.ID).
				Int64("balance_after", rec.BalanceAfter).
				Msg("Ledger intent committed")
			return rec, nil
		}

		if !retryable || attempt >= e.retries || ctx.Err() != nil {
			if errors.Is(err, ErrStorageFailure) {
				log.Error().Err(err).Str("account_id", in.AccountID.String()).Int("attempts", attempt+1).Msg("Ledger commit failed")
			} else {
				log.Warn().Err(err).Str("account_id", in.AccountID.String()).Str("cause", string(in.Cause)).Msg("Ledger intent rejected")
			}
			return nil, err
		}

		delay := e.backoff << attempt
		log.Warn().Err(err).
			Bool("contention", errors.Is(err, ErrLockContention)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying ledger lock acquisition")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, StorageError("wait for retry", ctx.Err())
		case <-timer.C:
		}
	}
}

// attempt runs one unit of work. retryable is true only for storage failures
// raised before any mutation was issued.
func (e *Engine) attempt(ctx context.Context, in Intent) (rec *TransactionRecord, retryable bool, err error) {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return nil, errors.Is(err, ErrStorageFailure), err
	}
	defer uow.Rollback()

	acct, err := uow.LockAccount(ctx, in.AccountID)
	if err != nil {
		return nil, errors.Is(err, ErrStorageFailure), err
	}
	if acct.CompanyID == nil && !in.Cause.IsAdmin() {
		return nil, false, invalid("account without company accepts only admin grants")
	}

	var items map[uuid.UUID]*ItemState
	if len(in.Reservations) > 0 {
		items, err = uow.LockItems(ctx, sortedItemIDs(in.Reservations))
		if err != nil {
			return nil, errors.Is(err, ErrStorageFailure), err
		}
	}

	if err := checkBalance(acct, in.Amount); err != nil {
		return nil, false, err
	}
	if err := checkReservations(in, items); err != nil {
		return nil, false, err
	}

	// Mutations from here on; nothing below is retried.
	balanceAfter, err := uow.ApplyBalance(ctx, acct.ID, in.Amount)
	if err != nil {
		return nil, false, err
	}
	for _, id := range sortedItemIDs(in.Reservations) {
		if err := uow.DecrementStock(ctx, id, quantityOf(in.Reservations, id)); err != nil {
			return nil, false, err
		}
	}

	rec = &TransactionRecord{
		AccountID:    acct.ID,
		CompanyID:    acct.CompanyID,
		Amount:       in.Amount,
		Cause:        in.Cause,
		Description:  in.Description,
		BalanceAfter: balanceAfter,
	}
	if in.ActorName != "" {
		actor := in.ActorName
		rec.ActorName = &actor
	}
	if err := uow.InsertRecord(ctx, rec); err != nil {
		return nil, false, err
	}
	if in.Order != nil {
		if err := uow.InsertOrder(ctx, rec.ID, acct.ID, in.Order); err != nil {
			return nil, false, err
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

func checkBalance(acct *AccountState, amount int64) error {
	if amount >= 0 || acct.Balance+amount >= 0 {
		return nil
	}
	return &InsufficientBalanceError{
		AccountID: acct.ID,
		Balance:   acct.Balance,
		Shortfall: -(acct.Balance + amount),
	}
}

// checkReservations walks reservations in intent order so the first
// violating item is the one reported.
func checkReservations(in Intent, items map[uuid.UUID]*ItemState) error {
	if len(in.Reservations) == 0 {
		return nil
	}

	var total int64
	for _, r := range in.Reservations {
		item, ok := items[r.ItemID]
		if !ok {
			return &ItemNotFoundError{ItemID: r.ItemID}
		}
		if item.Stock < r.Quantity {
			return &InsufficientStockError{ItemID: r.ItemID, Requested: r.Quantity, Available: item.Stock}
		}
		if item.UnitPrice > 0 && r.Quantity > (math.MaxInt64-total)/item.UnitPrice {
			return invalid("reservation total overflows")
		}
		total += item.UnitPrice * r.Quantity
	}

	if total != -in.Amount {
		return &AmountMismatchError{Expected: total, Actual: -in.Amount}
	}
	return nil
}

// normalize rejects malformed intents and merges duplicate reservations,
// keeping first-occurrence order.
func normalize(in Intent) (Intent, error) {
	if in.AccountID == uuid.Nil {
		return in, invalid("account id is required")
	}
	if in.Amount == 0 {
		return in, invalid("amount must not be zero")
	}
	if !in.Cause.Valid() {
		return in, invalid("unknown cause " + string(in.Cause))
	}
	if in.Order != nil && in.Cause != CausePurchase {
		return in, invalid("orders require cause purchase")
	}
	if len(in.Reservations) == 0 {
		in.Reservations = nil
		return in, nil
	}
	if !in.Cause.Reserves() {
		return in, invalid("cause " + string(in.Cause) + " cannot reserve stock")
	}
	if in.Amount > 0 {
		return in, invalid("stock reservations require a debit")
	}

	merged := make([]Reservation, 0, len(in.Reservations))
	index := make(map[uuid.UUID]int, len(in.Reservations))
	for _, r := range in.Reservations {
		if r.ItemID == uuid.Nil {
			return in, invalid("reservation item id is required")
		}
		if r.Quantity <= 0 {
			return in, invalid("reservation quantity must be positive")
		}
		if i, ok := index[r.ItemID]; ok {
			merged[i].Quantity += r.Quantity
			continue
		}
		index[r.ItemID] = len(merged)
		merged = append(merged, r)
	}
	in.Reservations = merged
	return in, nil
}

// sortedItemIDs fixes the lock acquisition order across concurrent intents.
func sortedItemIDs(rs []Reservation) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ItemID)
	}
	SortIDs(ids)
	return ids
}

// SortIDs orders ids ascending by their byte representation, matching
// Postgres uuid ordering.
func SortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

func quantityOf(rs []Reservation, id uuid.UUID) int64 {
	for _, r := range rs {
		if r.ItemID == id {
			return r.Quantity
		}
	}
	return 0
}
