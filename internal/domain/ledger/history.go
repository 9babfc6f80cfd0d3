package ledger

import (
	"context"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TransactionFilter selects history rows, newest first with id as
// tie-breaker. AsOfID pins a listing to the records that existed when its
// first page was read; zero means "anchor now".
type TransactionFilter struct {
	AccountID *uuid.UUID
	CompanyID *uuid.UUID
	Class     CauseClass
	AsOfID    int64
	Limit     int
	Offset    int
}

// Page is one slice of history.
type Page struct {
	Records []*TransactionRecord `json:"records"`
	Limit   int                  `json:"-"`
	Offset  int                  `json:"-"`
	HasNext bool                 `json:"-"`
	// AsOfID must be passed back with the next page's filter.
	AsOfID int64 `json:"-"`
}

// History is the read side of the ledger.
type History struct {
	reader Reader
}

// NewHistory creates history reader
func NewHistory(reader Reader) *History {
	return &History{reader: reader}
}

// List returns one page of records matching filter.
func (h *History) List(ctx context.Context, filter TransactionFilter) (*Page, error) {
	filter = normalizeFilter(filter)
	limit := filter.Limit

	if filter.AsOfID == 0 {
		latest, err := h.reader.LatestRecordID(ctx)
		if err != nil {
			return nil, err
		}
		if latest == 0 {
			return &Page{Records: []*TransactionRecord{}, Limit: limit, Offset: filter.Offset}, nil
		}
		filter.AsOfID = latest
	}

	// Fetch one extra row to learn whether another page exists.
	filter.Limit = limit + 1
	records, err := h.reader.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &Page{Limit: limit, Offset: filter.Offset, AsOfID: filter.AsOfID}
	if len(records) > limit {
		page.HasNext = true
		records = records[:limit]
	}
	page.Records = records
	return page, nil
}

// Balance returns the account's committed balance.
func (h *History) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return h.reader.GetBalance(ctx, accountID)
}

func normalizeFilter(f TransactionFilter) TransactionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.AsOfID < 0 {
		f.AsOfID = 0
	}
	if f.Class == "" {
		f.Class = ClassAll
	}
	return f
}

// Matches reports whether rec passes filter's anchor, account, company and
// class predicates. Used by stores that filter in process.
func (f TransactionFilter) Matches(rec *TransactionRecord) bool {
	if f.AsOfID > 0 && rec.ID > f.AsOfID {
		return false
	}
	if f.AccountID != nil && rec.AccountID != *f.AccountID {
		return false
	}
	if f.CompanyID != nil && (rec.CompanyID == nil || *rec.CompanyID != *f.CompanyID) {
		return false
	}
	switch f.Class {
	case ClassAdmin:
		return rec.Cause.IsAdmin()
	case ClassRegular:
		return !rec.Cause.IsAdmin()
	}
	return true
}
