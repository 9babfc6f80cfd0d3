package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository reads catalog items. Stock is written only by the ledger.
type Repository interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Item, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates catalog repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// GetByIDs fetches every referenced item in one round trip.
// Missing ids are simply absent from the result.
func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Item, error) {
	result := make(map[uuid.UUID]*Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query, args, err := sqlx.In(`SELECT id, name, unit_price, stock FROM catalog_items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var items []*Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}
	for _, it := range items {
		result[it.ID] = it
	}
	return result, nil
}
