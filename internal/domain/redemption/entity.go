package redemption

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyCart = errors.New("cart is empty")

// Line is one cart entry.
type Line struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int64     `json:"quantity" validate:"required,min=1,max=10000"`
}

// ReceiptLine is a priced cart entry after duplicate lines were merged.
type ReceiptLine struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Subtotal  int64     `json:"subtotal"`
}

// Receipt describes a committed redemption.
type Receipt struct {
	RecordID  int64           `json:"record_id"`
	OrderID   *uuid.UUID      `json:"order_id,omitempty"`
	Lines     []ReceiptLine   `json:"lines"`
	Total     int64           `json:"total"`
	Balance   int64           `json:"balance"`
	Shipping  json.RawMessage `json:"shipping,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
