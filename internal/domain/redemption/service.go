package redemption

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/access"
	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/catalog"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/domain/notification"
)

// Committer is the ledger write path.
type Committer interface {
	Commit(ctx context.Context, intent ledger.Intent) (*ledger.TransactionRecord, error)
}

// Notifier builds and delivers messages off the request path.
type Notifier interface {
	DispatchFunc(build func(ctx context.Context) ([]notification.Message, error))
}

// Service turns carts into a single ledger debit with stock reservations.
type Service struct {
	ledger   Committer
	catalog  catalog.Repository
	accounts account.Repository
	notifier Notifier
}

// NewService creates redemption service
func NewService(ledger Committer, catalog catalog.Repository, accounts account.Repository, notifier Notifier) *Service {
	return &Service{ledger: ledger, catalog: catalog, accounts: accounts, notifier: notifier}
}

// Redeem exchanges points for the items in lines.
func (s *Service) Redeem(ctx context.Context, actor access.Actor, lines []Line) (*Receipt, error) {
	return s.checkout(ctx, actor, lines, ledger.CauseSpend, nil)
}

// CreateOrder redeems like Redeem and stores an order carrying shipping
// exactly as received.
func (s *Service) CreateOrder(ctx context.Context, actor access.Actor, lines []Line, shipping json.RawMessage) (*Receipt, error) {
	return s.checkout(ctx, actor, lines, ledger.CausePurchase, shipping)
}

func (s *Service) checkout(ctx context.Context, actor access.Actor, lines []Line, cause ledger.Cause, shipping json.RawMessage) (*Receipt, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(merged))
	for i, l := range merged {
		ids[i] = l.ItemID
	}
	items, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, ledger.StorageError("load catalog items", err)
	}

	receiptLines := make([]ReceiptLine, 0, len(merged))
	reservations := make([]ledger.Reservation, 0, len(merged))
	var total int64
	for _, l := range merged {
		item, ok := items[l.ItemID]
		if !ok {
			return nil, &ledger.ItemNotFoundError{ItemID: l.ItemID}
		}
		if item.UnitPrice > 0 && l.Quantity > (math.MaxInt64-total)/item.UnitPrice {
			return nil, fmt.Errorf("%w: cart total overflows", ledger.ErrInvalidIntent)
		}
		subtotal := item.UnitPrice * l.Quantity
		total += subtotal
		receiptLines = append(receiptLines, ReceiptLine{
			ItemID:    item.ID,
			Name:      item.Name,
			Quantity:  l.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  subtotal,
		})
		reservations = append(reservations, ledger.Reservation{ItemID: l.ItemID, Quantity: l.Quantity})
	}

	intent := ledger.Intent{
		AccountID:    actor.UserID,
		Amount:       -total,
		Cause:        cause,
		Description:  describe(cause, receiptLines),
		Reservations: reservations,
	}

	var orderID *uuid.UUID
	if cause == ledger.CausePurchase {
		linesJSON, err := json.Marshal(receiptLines)
		if err != nil {
			return nil, fmt.Errorf("%w: encode order lines: %v", ledger.ErrInvalidIntent, err)
		}
		id := uuid.New()
		orderID = &id
		intent.Order = &ledger.OrderAttachment{ID: id, Lines: linesJSON, Shipping: shipping}
	}

	rec, err := s.ledger.Commit(ctx, intent)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		RecordID:  rec.ID,
		OrderID:   orderID,
		Lines:     receiptLines,
		Total:     total,
		Balance:   rec.BalanceAfter,
		Shipping:  shipping,
		CreatedAt: rec.CreatedAt,
	}
	s.notify(actor, rec, receipt)
	return receipt, nil
}

// notify tells the redeemer and every admin of the redeemer's company.
func (s *Service) notify(actor access.Actor, rec *ledger.TransactionRecord, receipt *Receipt) {
	if s.notifier == nil {
		return
	}
	summary := summarize(receipt.Lines)

	s.notifier.DispatchFunc(func(ctx context.Context) ([]notification.Message, error) {
		own := notification.Message{
			AccountID: rec.AccountID,
			Type:      notification.TypeRedemption,
			Title:     fmt.Sprintf("You redeemed %d points", receipt.Total),
			Body:      fmt.Sprintf("%s. Remaining balance: %d", summary, receipt.Balance),
		}
		if receipt.OrderID != nil {
			own.Type = notification.TypeOrderPlaced
			own.Title = fmt.Sprintf("Order placed for %d points", receipt.Total)
		}
		msgs := []notification.Message{own}

		if rec.CompanyID == nil {
			return msgs, nil
		}
		admins, err := s.accounts.ListCompanyAdmins(ctx, *rec.CompanyID)
		if err != nil {
			return msgs, err
		}
		who := actor.Name
		if who == "" {
			who = "An employee"
		}
		for _, admin := range admins {
			if admin.ID == rec.AccountID {
				continue
			}
			msgs = append(msgs, notification.Message{
				AccountID: admin.ID,
				Type:      notification.TypeRedemptionAdmin,
				Title:     fmt.Sprintf("%s redeemed %d points", who, receipt.Total),
				Body:      summary,
			})
		}
		return msgs, nil
	})
}

// mergeLines sums quantities of repeated items, keeping first-occurrence order.
func mergeLines(lines []Line) ([]Line, error) {
	merged := make([]Line, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if l.ItemID == uuid.Nil || l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: every line needs an item and a positive quantity", ledger.ErrInvalidIntent)
		}
		if i, ok := index[l.ItemID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ItemID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

func describe(cause ledger.Cause, lines []ReceiptLine) string {
	if cause == ledger.CausePurchase {
		return "Order: " + summarize(lines)
	}
	return "Redeemed: " + summarize(lines)
}

func summarize(lines []ReceiptLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprintf("%d x %s", l.Quantity, l.Name)
	}
	return strings.Join(parts, ", ")
}
