package statement

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/pkg/storage"
)

// MaxRows caps a single statement.
const MaxRows = 50000

var (
	ErrTooLarge = errors.New("statement exceeds row limit")
	ErrNotFound = errors.New("statement not found")
)

var header = []string{"id", "created_at", "account_id", "cause", "amount", "balance_after", "actor_name", "description"}

// Statement is an uploaded CSV export of company history.
type Statement struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// Exporter writes company history to object storage as CSV.
type Exporter struct {
	history *ledger.History
	store   storage.Storage
	now     func() time.Time
}

// NewExporter creates statement exporter
func NewExporter(history *ledger.History, store storage.Storage) *Exporter {
	return &Exporter{history: history, store: store, now: time.Now}
}

// Export pages through the company's history newest first and uploads it.
func (e *Exporter) Export(ctx context.Context, companyID uuid.UUID, class ledger.CauseClass) (*Statement, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	rows := 0
	filter := ledger.TransactionFilter{CompanyID: &companyID, Class: class, Limit: ledger.MaxPageSize}
	for {
		page, err := e.history.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			if err := w.Write(row(rec)); err != nil {
				return nil, err
			}
		}
		rows += len(page.Records)
		if rows > MaxRows {
			return nil, ErrTooLarge
		}
		if !page.HasNext {
			break
		}
		filter.Offset += len(page.Records)
		filter.AsOfID = page.AsOfID
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if class == "" {
		class = ledger.ClassAll
	}
	key := statementKey(companyID, fmt.Sprintf("%s-%s.csv", now.Format("20060102T150405Z"), class))
	if err := e.store.Put(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return nil, fmt.Errorf("upload statement: %w", err)
	}

	return &Statement{Key: key, URL: e.store.GetURL(key), Rows: rows, CreatedAt: now}, nil
}

// Remove deletes one of the company's statements from storage.
func (e *Exporter) Remove(ctx context.Context, companyID uuid.UUID, name string) error {
	if !validName(name) {
		return ErrNotFound
	}
	if err := e.store.Delete(ctx, statementKey(companyID, name)); err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}
	return nil
}

func statementKey(companyID uuid.UUID, name string) string {
	return fmt.Sprintf("statements/%s/%s", companyID, name)
}

func validName(name string) bool {
	return strings.HasSuffix(name, ".csv") && !strings.ContainsAny(name, "/\\") && !strings.Contains(name, "..")
}

func row(rec *ledger.TransactionRecord) []string {
	actor := ""
	if rec.ActorName != nil {
		actor = *rec.ActorName
	}
	return []string{
		strconv.FormatInt(rec.ID, 10),
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.AccountID.String(),
		string(rec.Cause),
		strconv.FormatInt(rec.Amount, 10),
		strconv.FormatInt(rec.BalanceAfter, 10),
		actor,
		rec.Description,
	}
}
