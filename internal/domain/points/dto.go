package points

import (
	"github.com/google/uuid"
)

// GrantRequest is the body of POST /points/grant
type GrantRequest struct {
	AccountID   uuid.UUID `json:"account_id" validate:"required"`
	Amount      int64     `json:"amount" validate:"nonzero,min=-1000000,max=1000000"`
	Description string    `json:"description" validate:"required,min=1,max=500"`
}

// ComplimentRequest is the body of POST /compliments
type ComplimentRequest struct {
	ToAccountID uuid.UUID `json:"to_account_id" validate:"required"`
	Message     string    `json:"message" validate:"required,min=1,max=500"`
}

// HistoryQuery is parsed from history query parameters
type HistoryQuery struct {
	Class  string `json:"class" validate:"cause_class"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100"`
	Offset int    `json:"offset" validate:"gte=0"`
	AsOf   int64  `json:"as_of" validate:"gte=0"`
}

// BalanceResponse is returned by GET /points/balance
type BalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   int64     `json:"balance"`
}
