package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository reads accounts. Balances are written only by the ledger.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ListCompanyAdmins(ctx context.Context, companyID uuid.UUID) ([]*Account, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates account repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// GetByID returns nil, nil when the account does not exist.
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a Account
	err := r.db.GetContext(ctx, &a, `
		SELECT id, company_id, name, role, points_balance
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *repository) ListCompanyAdmins(ctx context.Context, companyID uuid.UUID) ([]*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	admins := make([]*Account, 0)
	err := r.db.SelectContext(ctx, &admins, `
		SELECT id, company_id, name, role, points_balance
		FROM users
		WHERE company_id = $1 AND role = ANY($2)
		ORDER BY id
	`, companyID, pq.Array(AdminRoles))
	if err != nil {
		return nil, err
	}
	return admins, nil
}
