package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres"), 2*time.Second), mock
}

func TestPostgresCommitLocksAccountThenItems(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store)

	acct, company, item := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout = '2000ms'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, company_id, points_balance\s+FROM users\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(acct).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "points_balance"}).
			AddRow(acct.String(), company.String(), int64(100)))
	mock.ExpectQuery(`FROM catalog_items\s+WHERE id = ANY\(\$1::uuid\[\]\)\s+ORDER BY id\s+FOR UPDATE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "unit_price", "stock"}).
			AddRow(item.String(), int64(30), int64(5)))
	mock.ExpectQuery(`UPDATE users\s+SET points_balance = points_balance \+ \$2`).
		WithArgs(acct, int64(-60)).
		WillReturnRows(sqlmock.NewRows([]string{"points_balance"}).AddRow(int64(40)))
	mock.ExpectExec(`UPDATE catalog_items\s+SET stock = stock - \$2`).
		WithArgs(item, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO point_transactions`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))
	mock.ExpectCommit()

	rec, err := engine.Commit(context.Background(), Intent{
		AccountID:    acct,
		Amount:       -60,
		Cause:        CauseSpend,
		Reservations: []Reservation{{ItemID: item, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, int64(40), rec.BalanceAfter)
	assert.Equal(t, company, *rec.CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsufficientBalanceRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store)
	acct := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM users\s+WHERE id = \$1\s+FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "points_balance"}).
			AddRow(acct.String(), uuid.New().String(), int64(50)))
	mock.ExpectRollback()

	_, err := engine.Commit(context.Background(), Intent{AccountID: acct, Amount: -60, Cause: CauseAdminRemove})

	var balErr *InsufficientBalanceError
	require.True(t, errors.As(err, &balErr))
	assert.Equal(t, int64(10), balErr.Shortfall)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMissingAccountIsNotRetried(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store, WithLockRetries(3))

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "points_balance"}))
	mock.ExpectRollback()

	_, err := engine.Commit(context.Background(), Intent{AccountID: uuid.New(), Amount: 10, Cause: CauseAward})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockTimeoutIsRetried(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store, WithLockRetries(1), WithLockBackoff(time.Millisecond))
	acct := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(&pq.Error{Code: pqLockNotAvailable, Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "points_balance"}).
			AddRow(acct.String(), uuid.New().String(), int64(0)))
	mock.ExpectQuery(`UPDATE users`).
		WillReturnRows(sqlmock.NewRows([]string{"points_balance"}).AddRow(int64(10)))
	mock.ExpectQuery(`INSERT INTO point_transactions`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectCommit()

	rec, err := engine.Commit(context.Background(), Intent{AccountID: acct, Amount: 10, Cause: CauseAward})
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStockGuardFailureRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	engine := NewEngine(store, WithLockRetries(3))
	acct, item := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "points_balance"}).
			AddRow(acct.String(), uuid.New().String(), int64(100)))
	mock.ExpectQuery(`FROM catalog_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "unit_price", "stock"}).
			AddRow(item.String(), int64(10), int64(5)))
	mock.ExpectQuery(`UPDATE users`).
		WillReturnRows(sqlmock.NewRows([]string{"points_balance"}).AddRow(int64(90)))
	mock.ExpectExec(`UPDATE catalog_items`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := engine.Commit(context.Background(), Intent{
		AccountID:    acct,
		Amount:       -10,
		Cause:        CauseSpend,
		Reservations: []Reservation{{ItemID: item, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertOrderPassesShippingThrough(t *testing.T) {
	store, mock := newMockStore(t)
	unitID := uuid.New()
	acct := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(unitID, int64(3), acct, `[]`, `{"zip":"050000"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	err = uow.InsertOrder(context.Background(), 3, acct, &OrderAttachment{
		ID:       unitID,
		Lines:    []byte(`[]`),
		Shipping: []byte(`{"zip":"050000"}`),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordStampsStatementClock(t *testing.T) {
	store, mock := newMockStore(t)
	acct := uuid.New()
	stamped := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO point_transactions \(.*created_at\)\s+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, clock_timestamp\(\)\)`).
		WithArgs(acct, nil, int64(10), "award", "thanks", nil, int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), stamped))

	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	rec := &TransactionRecord{AccountID: acct, Amount: 10, Cause: CauseAward, Description: "thanks", BalanceAfter: 10}
	require.NoError(t, uow.InsertRecord(context.Background(), rec))
	assert.Equal(t, int64(9), rec.ID)
	assert.Equal(t, stamped, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactionsFiltersByCompanyAndClass(t *testing.T) {
	store, mock := newMockStore(t)
	company := uuid.New()
	acct := uuid.New()

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(id\), 0\) FROM point_transactions`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(7)))
	mock.ExpectQuery(`FROM point_transactions\s+WHERE 1=1 AND id <= \$1 AND company_id = \$2 AND cause = ANY\(\$3\) ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs(int64(7), company, sqlmock.AnyArg(), 21, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "company_id", "amount", "cause", "description", "actor_name", "balance_after", "created_at"}).
			AddRow(int64(2), acct.String(), company.String(), int64(100), "admin_add", "bonus", "Dana", int64(100), time.Now()))

	page, err := NewHistory(store).List(context.Background(), TransactionFilter{CompanyID: &company, Class: ClassAdmin})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.False(t, page.HasNext)
	assert.Equal(t, CauseAdminAdd, page.Records[0].Cause)
	require.NotNil(t, page.Records[0].ActorName)
	assert.Equal(t, "Dana", *page.Records[0].ActorName)
	assert.Equal(t, int64(7), page.AsOfID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactionsReusesAnchor(t *testing.T) {
	store, mock := newMockStore(t)
	acct := uuid.New()

	mock.ExpectQuery(`FROM point_transactions\s+WHERE 1=1 AND id <= \$1 AND account_id = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(int64(4), acct, 3, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "company_id", "amount", "cause", "description", "actor_name", "balance_after", "created_at"}).
			AddRow(int64(2), acct.String(), nil, int64(2), "award", "", nil, int64(3), time.Now()))

	page, err := NewHistory(store).List(context.Background(), TransactionFilter{AccountID: &acct, Limit: 2, Offset: 2, AsOfID: 4})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(4), page.AsOfID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalanceMissingAccount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT points_balance FROM users WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"points_balance"}))

	_, err := store.GetBalance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
