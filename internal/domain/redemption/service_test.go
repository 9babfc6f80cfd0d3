package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kudos/kudos-api/internal/domain/access"
	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/catalog"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/domain/ledger/memstore"
	"github.com/kudos/kudos-api/internal/domain/notification"
)

// syncNotifier runs builders inline so tests can inspect messages.
type syncNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *syncNotifier) DispatchFunc(build func(ctx context.Context) ([]notification.Message, error)) {
	msgs, _ := build(context.Background())
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msgs...)
}

type countingEngine struct {
	*ledger.Engine
	calls int
}

func (c *countingEngine) Commit(ctx context.Context, intent ledger.Intent) (*ledger.TransactionRecord, error) {
	c.calls++
	return c.Engine.Commit(ctx, intent)
}

type env struct {
	store    *memstore.Store
	engine   *countingEngine
	service  *Service
	notifier *syncNotifier
	company  uuid.UUID
}

func newEnv() *env {
	store := memstore.New()
	engine := &countingEngine{Engine: ledger.NewEngine(store)}
	notifier := &syncNotifier{}
	return &env{
		store:    store,
		engine:   engine,
		service:  NewService(engine, store, store, notifier),
		notifier: notifier,
		company:  uuid.New(),
	}
}

func (e *env) member(role string, balance int64) access.Actor {
	company := e.company
	a := account.Account{ID: uuid.New(), CompanyID: &company, Name: "Sam", Role: role, Balance: balance}
	e.store.PutAccount(a)
	return access.Actor{UserID: a.ID, CompanyID: company, Role: role, Name: a.Name}
}

func (e *env) item(name string, price, stock int64) uuid.UUID {
	id := uuid.New()
	e.store.PutItem(catalog.Item{ID: id, Name: name, UnitPrice: price, Stock: stock})
	return id
}

func TestRedeemSingleLine(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 100)
	admin := e.member(account.RoleCompanyAdmin, 0)
	mug := e.item("Mug", 30, 5)

	receipt, err := e.service.Redeem(context.Background(), buyer, []Line{{ItemID: mug, Quantity: 2}})
	require.NoError(t, err)

	assert.Equal(t, int64(60), receipt.Total)
	assert.Equal(t, int64(40), receipt.Balance)
	require.Len(t, receipt.Lines, 1)
	assert.Equal(t, "Mug", receipt.Lines[0].Name)

	stock, _ := e.store.Stock(mug)
	assert.Equal(t, int64(3), stock)

	records := e.store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, ledger.CauseSpend, records[0].Cause)
	assert.Equal(t, int64(-60), records[0].Amount)

	require.Len(t, e.notifier.msgs, 2)
	assert.Equal(t, buyer.UserID, e.notifier.msgs[0].AccountID)
	assert.Equal(t, notification.TypeRedemption, e.notifier.msgs[0].Type)
	assert.Equal(t, admin.UserID, e.notifier.msgs[1].AccountID)
	assert.Equal(t, notification.TypeRedemptionAdmin, e.notifier.msgs[1].Type)
}

func TestRedeemInsufficientBalanceUntouched(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 50)
	mug := e.item("Mug", 30, 5)

	_, err := e.service.Redeem(context.Background(), buyer, []Line{{ItemID: mug, Quantity: 2}})

	var balErr *ledger.InsufficientBalanceError
	require.True(t, errors.As(err, &balErr))
	assert.Equal(t, int64(50), balErr.Balance)
	assert.Equal(t, int64(10), balErr.Shortfall)

	stock, _ := e.store.Stock(mug)
	assert.Equal(t, int64(5), stock)
	assert.Empty(t, e.store.Records())
	assert.Empty(t, e.notifier.msgs)
}

func TestRedeemEmptyCartSkipsStorage(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 50)

	_, err := e.service.Redeem(context.Background(), buyer, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, e.engine.calls)
}

func TestRedeemUnknownItemNamesIt(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 50)
	mug := e.item("Mug", 10, 5)
	missing := uuid.New()

	_, err := e.service.Redeem(context.Background(), buyer, []Line{{ItemID: mug, Quantity: 1}, {ItemID: missing, Quantity: 1}})

	var nf *ledger.ItemNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, missing, nf.ItemID)
	assert.Equal(t, 0, e.engine.calls)
}

func TestRedeemMergesDuplicateLines(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 1000)
	mug := e.item("Mug", 10, 2)

	_, err := e.service.Redeem(context.Background(), buyer, []Line{{ItemID: mug, Quantity: 1}, {ItemID: mug, Quantity: 2}})

	var stockErr *ledger.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, int64(3), stockErr.Requested)
	assert.Equal(t, int64(2), stockErr.Available)

	stock, _ := e.store.Stock(mug)
	assert.Equal(t, int64(2), stock)
}

func TestRedeemThreeItemsOneRecord(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 100)
	lines := []Line{
		{ItemID: e.item("Mug", 10, 5), Quantity: 1},
		{ItemID: e.item("Hat", 20, 5), Quantity: 1},
		{ItemID: e.item("Pen", 5, 5), Quantity: 2},
	}

	receipt, err := e.service.Redeem(context.Background(), buyer, lines)
	require.NoError(t, err)
	assert.Equal(t, int64(40), receipt.Total)
	assert.Len(t, e.store.Records(), 1)
}

func TestRedeemRejectsNonPositiveQuantity(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 100)
	mug := e.item("Mug", 10, 5)

	_, err := e.service.Redeem(context.Background(), buyer, []Line{{ItemID: mug, Quantity: -1}})
	assert.ErrorIs(t, err, ledger.ErrInvalidIntent)
}

func TestCreateOrderStoresShippingVerbatim(t *testing.T) {
	e := newEnv()
	buyer := e.member(account.RoleEmployee, 100)
	hoodie := e.item("Hoodie", 40, 3)
	shipping := json.RawMessage(`{"name":"Sam","address":{"city":"Almaty","zip":"050000"},"notes":null}`)

	receipt, err := e.service.CreateOrder(context.Background(), buyer, []Line{{ItemID: hoodie, Quantity: 2}}, shipping)
	require.NoError(t, err)
	require.NotNil(t, receipt.OrderID)

	records := e.store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, ledger.CausePurchase, records[0].Cause)

	orders := e.store.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, *receipt.OrderID, orders[0].ID)
	assert.Equal(t, records[0].ID, orders[0].RecordID)
	assert.Equal(t, string(shipping), string(orders[0].Shipping))
	assert.Equal(t, notification.TypeOrderPlaced, e.notifier.msgs[0].Type)
}
