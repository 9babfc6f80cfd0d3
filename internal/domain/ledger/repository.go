package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Postgres error codes treated as lock contention.
const (
	pqLockNotAvailable = "55P03"
	pqDeadlockDetected = "40P01"
)

// PostgresStore runs units of work as READ COMMITTED transactions holding
// row locks taken with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewPostgresStore creates the Postgres ledger store. A positive lockTimeout
// bounds how long a unit waits for a contended row.
func NewPostgresStore(db *sqlx.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

func (s *PostgresStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, pgError("begin tx", err)
	}
	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, pgError("set lock timeout", err)
		}
	}
	return &pgUnit{tx: tx}, nil
}

type pgUnit struct {
	tx *sqlx.Tx
}

type accountRow struct {
	ID        uuid.UUID  `db:"id"`
	CompanyID *uuid.UUID `db:"company_id"`
	Balance   int64      `db:"points_balance"`
}

type itemRow struct {
	ID        uuid.UUID `db:"id"`
	UnitPrice int64     `db:"unit_price"`
	Stock     int64     `db:"stock"`
}

func (u *pgUnit) LockAccount(ctx context.Context, id uuid.UUID) (*AccountState, error) {
	var row accountRow
	err := u.tx.GetContext(ctx, &row, `
		SELECT id, company_id, points_balance
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, pgError("lock account", err)
	}
	return &AccountState{ID: row.ID, CompanyID: row.CompanyID, Balance: row.Balance}, nil
}

func (u *pgUnit) LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ItemState, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	var rows []itemRow
	err := u.tx.SelectContext(ctx, &rows, `
		SELECT id, unit_price, stock
		FROM catalog_items
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, pq.Array(keys))
	if err != nil {
		return nil, pgError("lock items", err)
	}

	items := make(map[uuid.UUID]*ItemState, len(rows))
	for _, r := range rows {
		items[r.ID] = &ItemState{ID: r.ID, UnitPrice: r.UnitPrice, Stock: r.Stock}
	}
	return items, nil
}

func (u *pgUnit) ApplyBalance(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := u.tx.GetContext(ctx, &balance, `
		UPDATE users
		SET points_balance = points_balance + $2, updated_at = now()
		WHERE id = $1 AND points_balance + $2 >= 0
		RETURNING points_balance
	`, accountID, delta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, StorageError("apply balance", errors.New("balance guard rejected locked row"))
		}
		return 0, pgError("apply balance", err)
	}
	return balance, nil
}

func (u *pgUnit) DecrementStock(ctx context.Context, itemID uuid.UUID, quantity int64) error {
	result, err := u.tx.ExecContext(ctx, `
		UPDATE catalog_items
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
	`, itemID, quantity)
	if err != nil {
		return pgError("decrement stock", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return pgError("rows affected", err)
	}
	if rows == 0 {
		return StorageError("decrement stock", errors.New("stock guard rejected locked row"))
	}
	return nil
}

func (u *pgUnit) InsertRecord(ctx context.Context, rec *TransactionRecord) error {
	err := u.tx.QueryRowxContext(ctx, `
		INSERT INTO point_transactions (account_id, company_id, amount, cause, description, actor_name, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, clock_timestamp())
		RETURNING id, created_at
	`, rec.AccountID, rec.CompanyID, rec.Amount, string(rec.Cause), rec.Description, rec.ActorName, rec.BalanceAfter).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return pgError("insert transaction", err)
	}
	return nil
}

func (u *pgUnit) InsertOrder(ctx context.Context, recordID int64, accountID uuid.UUID, order *OrderAttachment) error {
	var shipping interface{}
	if len(order.Shipping) > 0 {
		shipping = string(order.Shipping)
	}
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO orders (id, record_id, account_id, lines, shipping)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, recordID, accountID, string(order.Lines), shipping)
	if err != nil {
		return pgError("insert order", err)
	}
	return nil
}

func (u *pgUnit) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return pgError("commit tx", err)
	}
	return nil
}

func (u *pgUnit) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return pgError("rollback tx", err)
	}
	return nil
}

// ListTransactions serves history pages straight from the table without locks.
func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	base := `
		SELECT id, account_id, company_id, amount, cause, description, actor_name, balance_after, created_at
		FROM point_transactions
		WHERE 1=1`
	args := make([]interface{}, 0, 5)
	idx := 1

	if filter.AsOfID > 0 {
		base += fmt.Sprintf(" AND id <= $%d", idx)
		args = append(args, filter.AsOfID)
		idx++
	}
	if filter.AccountID != nil {
		base += fmt.Sprintf(" AND account_id = $%d", idx)
		args = append(args, *filter.AccountID)
		idx++
	}
	if filter.CompanyID != nil {
		base += fmt.Sprintf(" AND company_id = $%d", idx)
		args = append(args, *filter.CompanyID)
		idx++
	}
	switch filter.Class {
	case ClassAdmin:
		base += fmt.Sprintf(" AND cause = ANY($%d)", idx)
		args = append(args, pq.Array(causeStrings(AdminCauses)))
		idx++
	case ClassRegular:
		base += fmt.Sprintf(" AND NOT (cause = ANY($%d))", idx)
		args = append(args, pq.Array(causeStrings(AdminCauses)))
		idx++
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	records := make([]*TransactionRecord, 0)
	if err := s.db.SelectContext(ctx, &records, base, args...); err != nil {
		return nil, pgError("list transactions", err)
	}
	return records, nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int64
	err := s.db.GetContext(ctx, &balance, `SELECT points_balance FROM users WHERE id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, pgError("get balance", err)
	}
	return balance, nil
}

// LatestRecordID anchors history listings.
func (s *PostgresStore) LatestRecordID(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var id int64
	if err := s.db.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM point_transactions`); err != nil {
		return 0, pgError("latest record id", err)
	}
	return id, nil
}

func causeStrings(causes []Cause) []string {
	out := make([]string, len(causes))
	for i, c := range causes {
		out[i] = string(c)
	}
	return out
}

// pgError wraps err as a storage failure, tagging lock timeouts and
// deadlocks as contention.
func pgError(step string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == pqLockNotAvailable || pqErr.Code == pqDeadlockDetected) {
		return fmt.Errorf("%w: %s: %w: %w", ErrStorageFailure, step, ErrLockContention, err)
	}
	return StorageError(step, err)
}
