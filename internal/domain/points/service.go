package points

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/access"
	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/domain/notification"
)

// ComplimentPoints is awarded to the recipient of every compliment.
const ComplimentPoints int64 = 10

// Committer is the ledger write path.
type Committer interface {
	Commit(ctx context.Context, intent ledger.Intent) (*ledger.TransactionRecord, error)
}

// Notifier hands messages off without blocking.
type Notifier interface {
	Dispatch(msgs ...notification.Message)
}

// Service handles admin grants and peer compliments
type Service struct {
	ledger   Committer
	accounts account.Repository
	notifier Notifier
}

// NewService creates points service
func NewService(ledger Committer, accounts account.Repository, notifier Notifier) *Service {
	return &Service{ledger: ledger, accounts: accounts, notifier: notifier}
}

// GrantPoints adds (amount > 0) or removes (amount < 0) points on behalf of an admin.
func (s *Service) GrantPoints(ctx context.Context, actor access.Actor, accountID uuid.UUID, amount int64, description string) (*ledger.TransactionRecord, error) {
	target, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, ledger.StorageError("load account", err)
	}
	if target == nil {
		return nil, ledger.ErrAccountNotFound
	}
	if !access.CanActOnCompany(actor.Role, actor.CompanyID, target) {
		return nil, ErrOutOfScope
	}

	cause := ledger.CauseAdminAdd
	if amount < 0 {
		cause = ledger.CauseAdminRemove
	}

	rec, err := s.ledger.Commit(ctx, ledger.Intent{
		AccountID:   accountID,
		Amount:      amount,
		Cause:       cause,
		Description: description,
		ActorName:   actor.Name,
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(grantMessage(rec, actor.Name))
	return rec, nil
}

// AwardCompliment credits the fixed compliment award to the recipient.
// The sender's balance is never touched.
func (s *Service) AwardCompliment(ctx context.Context, actor access.Actor, toAccountID uuid.UUID, message string) (*ledger.TransactionRecord, error) {
	if actor.UserID == toAccountID {
		return nil, ErrSelfCompliment
	}
	if actor.CompanyID == uuid.Nil {
		return nil, ErrNoCompany
	}

	recipient, err := s.accounts.GetByID(ctx, toAccountID)
	if err != nil {
		return nil, ledger.StorageError("load account", err)
	}
	if recipient == nil {
		return nil, ledger.ErrAccountNotFound
	}
	if !recipient.InCompany(actor.CompanyID) {
		return nil, ErrOutOfScope
	}

	rec, err := s.ledger.Commit(ctx, ledger.Intent{
		AccountID:   toAccountID,
		Amount:      ComplimentPoints,
		Cause:       ledger.CauseAward,
		Description: complimentDescription(actor.Name, message),
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(notification.Message{
		AccountID: toAccountID,
		Type:      notification.TypeComplimentReceived,
		Title:     "You received a compliment",
		Body:      fmt.Sprintf("%s: %s (+%d points)", senderName(actor.Name), message, ComplimentPoints),
	})
	return rec, nil
}

func grantMessage(rec *ledger.TransactionRecord, actorName string) notification.Message {
	if rec.Amount > 0 {
		return notification.Message{
			AccountID: rec.AccountID,
			Type:      notification.TypePointsGranted,
			Title:     fmt.Sprintf("You received %d points", rec.Amount),
			Body:      fmt.Sprintf("%s: %s. Balance: %d", senderName(actorName), rec.Description, rec.BalanceAfter),
		}
	}
	return notification.Message{
		AccountID: rec.AccountID,
		Type:      notification.TypePointsRemoved,
		Title:     fmt.Sprintf("%d points were removed", -rec.Amount),
		Body:      fmt.Sprintf("%s: %s. Balance: %d", senderName(actorName), rec.Description, rec.BalanceAfter),
	}
}

func complimentDescription(from, message string) string {
	return fmt.Sprintf("Compliment from %s: %s", senderName(from), message)
}

func senderName(name string) string {
	if name == "" {
		return "A colleague"
	}
	return name
}
