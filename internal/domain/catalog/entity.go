package catalog

import (
	"github.com/google/uuid"
)

// Item is a redeemable catalog entry priced in points.
type Item struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	UnitPrice int64     `db:"unit_price" json:"unit_price"`
	Stock     int64     `db:"stock" json:"stock"`
}
