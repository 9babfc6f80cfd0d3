package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Cause classifies why a balance moved.
type Cause string

const (
	CauseAward       Cause = "award"
	CauseSpend       Cause = "spend"
	CauseAdminAdd    Cause = "admin_add"
	CauseAdminRemove Cause = "admin_remove"
	CausePurchase    Cause = "purchase"
)

// Valid reports whether c is a known cause.
func (c Cause) Valid() bool {
	switch c {
	case CauseAward, CauseSpend, CauseAdminAdd, CauseAdminRemove, CausePurchase:
		return true
	}
	return false
}

// IsAdmin reports whether c is an admin-managed movement.
func (c Cause) IsAdmin() bool {
	return c == CauseAdminAdd || c == CauseAdminRemove
}

// Reserves reports whether c may carry stock reservations.
func (c Cause) Reserves() bool {
	return c == CauseSpend || c == CausePurchase
}

// CauseClass groups causes for reporting.
type CauseClass string

const (
	ClassAll     CauseClass = "all"
	ClassAdmin   CauseClass = "admin"
	ClassRegular CauseClass = "regular"
)

// AdminCauses are the causes in ClassAdmin.
var AdminCauses = []Cause{CauseAdminAdd, CauseAdminRemove}

// Reservation asks for quantity units of an item inside one commit.
type Reservation struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int64     `json:"quantity"`
}

// OrderAttachment is persisted alongside a purchase record.
// Shipping is stored as received and never interpreted.
type OrderAttachment struct {
	ID       uuid.UUID       `json:"id"`
	Lines    json.RawMessage `json:"lines"`
	Shipping json.RawMessage `json:"shipping,omitempty"`
}

// Intent is a proposed balance mutation. Positive amounts credit, negative debit.
type Intent struct {
	AccountID    uuid.UUID
	Amount       int64
	Cause        Cause
	Description  string
	ActorName    string
	Reservations []Reservation
	Order        *OrderAttachment
}

// TransactionRecord is one append-only history row per committed intent.
type TransactionRecord struct {
	ID           int64      `db:"id" json:"id"`
	AccountID    uuid.UUID  `db:"account_id" json:"account_id"`
	CompanyID    *uuid.UUID `db:"company_id" json:"company_id,omitempty"`
	Amount       int64      `db:"amount" json:"amount"`
	Cause        Cause      `db:"cause" json:"cause"`
	Description  string     `db:"description" json:"description"`
	ActorName    *string    `db:"actor_name" json:"actor_name,omitempty"`
	BalanceAfter int64      `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
