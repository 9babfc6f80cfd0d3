package statement

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/domain/ledger/memstore"
	"github.com/kudos/kudos-api/internal/middleware"
	"github.com/kudos/kudos-api/internal/pkg/jwt"
)

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (s *memStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[key] = data
	return nil
}

func (s *memStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

func (s *memStorage) GetURL(key string) string { return "https://files.test/" + key }

func seedHistory(t *testing.T, n int) (*memstore.Store, uuid.UUID) {
	t.Helper()
	store := memstore.New()
	company := uuid.New()
	acct := uuid.New()
	store.PutAccount(account.Account{ID: acct, CompanyID: &company, Role: account.RoleEmployee})

	engine := ledger.NewEngine(store)
	for i := 0; i < n; i++ {
		intent := ledger.Intent{AccountID: acct, Amount: 10, Cause: ledger.CauseAward, Description: "kudos, with comma"}
		if i%3 == 0 {
			intent = ledger.Intent{AccountID: acct, Amount: 5, Cause: ledger.CauseAdminAdd, ActorName: "Dana"}
		}
		_, err := engine.Commit(context.Background(), intent)
		require.NoError(t, err)
	}
	return store, company
}

func TestExportPagesThroughAllRecords(t *testing.T) {
	store, company := seedHistory(t, 230)
	files := &memStorage{}
	exp := NewExporter(ledger.NewHistory(store), files)
	exp.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

	stmt, err := exp.Export(context.Background(), company, ledger.ClassAll)
	require.NoError(t, err)
	assert.Equal(t, 230, stmt.Rows)
	assert.Equal(t, "statements/"+company.String()+"/20261016T120000Z-all.csv", stmt.Key)
	assert.Equal(t, "https://files.test/"+stmt.Key, stmt.URL)

	rows, err := csv.NewReader(strings.NewReader(string(files.files[stmt.Key]))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 231)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "kudos, with comma", rows[1][7])
}

func TestExportFiltersAdminClass(t *testing.T) {
	store, company := seedHistory(t, 9)
	files := &memStorage{}

	stmt, err := NewExporter(ledger.NewHistory(store), files).Export(context.Background(), company, ledger.ClassAdmin)
	require.NoError(t, err)
	assert.Equal(t, 3, stmt.Rows)
	assert.Contains(t, string(files.files[stmt.Key]), "Dana")
}

// commitBetweenPages lands a new record right after the first page is read.
type commitBetweenPages struct {
	ledger.Reader
	once   sync.Once
	commit func()
}

func (c *commitBetweenPages) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]*ledger.TransactionRecord, error) {
	records, err := c.Reader.ListTransactions(ctx, filter)
	c.once.Do(c.commit)
	return records, err
}

func TestExportSkipsRecordsCommittedMidExport(t *testing.T) {
	store, company := seedHistory(t, 150)
	acct := store.Records()[0].AccountID
	reader := &commitBetweenPages{Reader: store, commit: func() {
		_, err := ledger.NewEngine(store).Commit(context.Background(), ledger.Intent{AccountID: acct, Amount: 1, Cause: ledger.CauseAward})
		require.NoError(t, err)
	}}
	files := &memStorage{}

	stmt, err := NewExporter(ledger.NewHistory(reader), files).Export(context.Background(), company, ledger.ClassAll)
	require.NoError(t, err)
	assert.Equal(t, 150, stmt.Rows)

	rows, err := csv.NewReader(strings.NewReader(string(files.files[stmt.Key]))).ReadAll()
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, r := range rows[1:] {
		assert.False(t, seen[r[0]], "record %s exported twice", r[0])
		seen[r[0]] = true
	}
	assert.Len(t, store.Records(), 151)
}

func TestExportUploadFailure(t *testing.T) {
	store, company := seedHistory(t, 1)
	files := &memStorage{err: errors.New("bucket gone")}

	_, err := NewExporter(ledger.NewHistory(store), files).Export(context.Background(), company, ledger.ClassAll)
	assert.Error(t, err)
}

func TestExportEndpointScopesCompany(t *testing.T) {
	store, company := seedHistory(t, 2)
	jwtSvc := jwt.NewService("secret", time.Minute)
	h := NewHandler(NewExporter(ledger.NewHistory(store), &memStorage{}))
	router := chi.NewRouter()
	router.Mount("/company/statements", h.Routes(middleware.Auth(jwtSvc)))

	token, err := jwtSvc.GenerateAccessToken(jwt.Subject{UserID: uuid.New(), CompanyID: company, Role: account.RoleCompanyAdmin})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/company/statements", strings.NewReader(`{"class":"regular"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"rows":1`)

	req = httptest.NewRequest(http.MethodPost, "/company/statements", strings.NewReader(`{"company_id":"`+uuid.New().String()+`"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
