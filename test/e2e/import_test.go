// Package e2etest provides end-to-end integration tests for import flows.
package e2etest

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/repository"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/rules"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/service"
	"github.com/FACorreiaa/bankfeed/pkg/archive"
)

// memStore is a complete in-memory Store so the whole pipeline runs
// without Postgres.
type memStore struct {
	mu       sync.Mutex
	byHash   map[string]*repository.PersistedTransaction
	mappings map[string]*repository.SavedMapping
	rules    []rules.Rule
	jobs     map[uuid.UUID]*repository.ImportJob
}

func newMemStore() *memStore {
	return &memStore{
		byHash:   make(map[string]*repository.PersistedTransaction),
		mappings: make(map[string]*repository.SavedMapping),
		jobs:     make(map[uuid.UUID]*repository.ImportJob),
	}
}

func (m *memStore) FindRecentHashes(context.Context, uuid.UUID, int) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.byHash))
	for h := range m.byHash {
		out[h] = struct{}{}
	}
	return out, nil
}

func (m *memStore) RecentTransactions(context.Context, uuid.UUID, int) ([]repository.RecentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.RecentTransaction
	for _, t := range m.byHash {
		out = append(out, repository.RecentTransaction{
			PostedOn:    t.PostedOn,
			AmountCents: t.AmountCents,
			Description: t.Description,
			DedupeHash:  t.DedupeHash,
		})
	}
	return out, nil
}

func (m *memStore) BulkUpsertByHash(_ context.Context, _ uuid.UUID, records []*repository.PersistedTransaction, overwrite bool) (*repository.UpsertStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &repository.UpsertStats{}
	for _, r := range records {
		if _, ok := m.byHash[r.DedupeHash]; ok {
			if overwrite {
				m.byHash[r.DedupeHash] = r
				stats.Updated++
			} else {
				stats.Skipped++
			}
			continue
		}
		m.byHash[r.DedupeHash] = r
		stats.Inserted++
	}
	return stats, nil
}

func (m *memStore) ListTransactions(context.Context, uuid.UUID, int, int) ([]*repository.PersistedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.PersistedTransaction
	for _, t := range m.byHash {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) UpdateClassification(_ context.Context, _ uuid.UUID, id uuid.UUID, category string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byHash {
		if t.ID == id {
			t.Category = category
			t.Tags = tags
		}
	}
	return nil
}

func (m *memStore) GetMappingBySignature(_ context.Context, _ uuid.UUID, signature string) (*repository.SavedMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if saved, ok := m.mappings[signature]; ok {
		return saved, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) SaveMapping(_ context.Context, sm *repository.SavedMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[sm.Signature] = sm
	return nil
}

func (m *memStore) ListEnabledRules(context.Context, uuid.UUID) ([]rules.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules, nil
}

func (m *memStore) CreateImportJob(_ context.Context, job *repository.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = repository.JobPending
	job.CreatedAt = time.Now()
	m.jobs[job.ID] = job
	return nil
}

func (m *memStore) MarkImportJobRunning(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Status = repository.JobRunning
	}
	return nil
}

func (m *memStore) FinishImportJob(_ context.Context, id uuid.UUID, status string, job *repository.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = status
	j.TotalProcessed = job.TotalProcessed
	j.Inserted = job.Inserted
	j.Updated = job.Updated
	j.DuplicatesSkipped = job.DuplicatesSkipped
	j.RowErrors = job.RowErrors
	j.ErrorMessage = job.ErrorMessage
	now := time.Now()
	j.FinishedAt = &now
	return nil
}

func (m *memStore) GetImportJob(_ context.Context, _ uuid.UUID, id uuid.UUID) (*repository.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return j, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) DeleteFinishedJobsBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newService(store repository.Store, arc archive.Archive) *service.Service {
	logger := slog.New(slog.DiscardHandler)
	return service.New(store, nil, nil, nil, arc, service.DefaultLimits(), logger)
}

func fileInput(name, contentType string, data []byte) service.FileInput {
	return service.FileInput{Name: name, ContentType: contentType, Data: data, AccountID: "acct-main"}
}

// TestSemicolonStatementFlow walks a European-style statement with
// semicolon delimiter and localized headers through detect, manual
// mapping, preview, commit and mapping recall.
func TestSemicolonStatementFlow(t *testing.T) {
	data := []byte("Data;Descricao;Montante\n" +
		"2024-01-15;LEVANTAMENTO ATM LISBOA;-20.00\n" +
		"2024-01-16;ORDENADO JANEIRO;1200.00\n" +
		"2024-01-17;CONTINENTE SUPERMERCADO;-54.30\n")

	ctx := context.Background()
	userID := uuid.New()
	store := newMemStore()
	svc := newService(store, nil)
	in := fileInput("comprovativo.csv", "text/csv", data)

	mapping := parser.ColumnMapping{Date: "Data", Description: "Descricao", Amount: "Montante"}

	t.Run("DetectColumns", func(t *testing.T) {
		out, err := svc.DetectColumns(ctx, userID, in)
		require.NoError(t, err)

		assert.Equal(t, ";", out.Inspection.Delimiter)
		assert.Equal(t, []string{"Data", "Descricao", "Montante"}, out.Inspection.Columns)
		assert.NotEmpty(t, out.Inspection.Signature)
		// Localized headers match no keyword, so the client must map.
		assert.Empty(t, out.Inspection.Suggested.Date)
		assert.Nil(t, out.SavedMapping)

		t.Logf("detected: delimiter=%q, columns=%v, signature=%.12s...",
			out.Inspection.Delimiter, out.Inspection.Columns, out.Inspection.Signature)
	})

	t.Run("Preview", func(t *testing.T) {
		out, err := svc.Preview(ctx, userID, in, mapping)
		require.NoError(t, err)

		assert.Equal(t, 3, out.TotalRows)
		assert.Len(t, out.Transactions, 3)
		assert.Empty(t, out.Errors)
		assert.Empty(t, store.byHash, "preview must not write")

		t.Logf("preview: rows=%d, duplicates=%d", out.TotalRows, len(out.Duplicates))
	})

	t.Run("Commit", func(t *testing.T) {
		receipt, err := svc.Commit(ctx, userID, in, mapping, service.CommitOptions{
			SkipDuplicates:   true,
			SaveMappingLabel: "CGD checking",
		})
		require.NoError(t, err)
		require.NotNil(t, receipt.Result)

		assert.Equal(t, 3, receipt.Result.Inserted)
		assert.Equal(t, 0, receipt.Result.DuplicatesSkipped)
		assert.Len(t, store.byHash, 3)

		job, err := svc.JobStatus(ctx, userID, receipt.JobID)
		require.NoError(t, err)
		assert.Equal(t, repository.JobSucceeded, job.Status)

		t.Logf("commit: inserted=%d, job=%s", receipt.Result.Inserted, receipt.JobID)
	})

	t.Run("ReimportSkipsDuplicates", func(t *testing.T) {
		receipt, err := svc.Commit(ctx, userID, in, mapping, service.CommitOptions{SkipDuplicates: true})
		require.NoError(t, err)
		require.NotNil(t, receipt.Result)

		assert.Equal(t, 0, receipt.Result.Inserted)
		assert.Equal(t, 3, receipt.Result.DuplicatesSkipped)
		assert.Len(t, store.byHash, 3)
	})

	t.Run("MappingRecalledBySignature", func(t *testing.T) {
		out, err := svc.DetectColumns(ctx, userID, in)
		require.NoError(t, err)

		require.NotNil(t, out.SavedMapping)
		assert.Equal(t, "CGD checking", out.SavedLabel)
		assert.Equal(t, "Data", out.SavedMapping.Date)
		assert.Equal(t, "Montante", out.SavedMapping.Amount)
	})
}

// TestCommaStatementFlow covers an English-language export where the
// suggestion engine can fill the whole mapping unaided.
func TestCommaStatementFlow(t *testing.T) {
	data := []byte("Date,Description,Amount\n" +
		"2024-02-01,Grocery Store,-32.10\n" +
		"2024-02-02,NETFLIX.COM,-15.99\n" +
		"2024-02-03,Payroll Deposit,2100.00\n")

	ctx := context.Background()
	userID := uuid.New()
	store := newMemStore()
	store.rules = []rules.Rule{{
		ID: uuid.New(), Field: "description", MatchKind: rules.MatchContains, Value: "netflix",
		SetCategory: strPtr("Streaming"), SetTags: []string{"subscription"},
		Order: 1, Enabled: true,
	}}
	svc := newService(store, nil)
	in := fileInput("statement.csv", "text/csv", data)

	t.Run("SuggestedMappingIsComplete", func(t *testing.T) {
		out, err := svc.DetectColumns(ctx, userID, in)
		require.NoError(t, err)

		assert.Equal(t, "Date", out.Inspection.Suggested.Date)
		assert.Equal(t, "Description", out.Inspection.Suggested.Description)
		assert.Equal(t, "Amount", out.Inspection.Suggested.Amount)
	})

	t.Run("CommitAppliesRules", func(t *testing.T) {
		out, err := svc.DetectColumns(ctx, userID, in)
		require.NoError(t, err)

		receipt, err := svc.Commit(ctx, userID, in, out.Inspection.Suggested, service.CommitOptions{SkipDuplicates: true})
		require.NoError(t, err)
		assert.Equal(t, 3, receipt.Result.Inserted)

		var netflix *repository.PersistedTransaction
		for _, tx := range store.byHash {
			if tx.Description == "NETFLIX.COM" {
				netflix = tx
			}
		}
		require.NotNil(t, netflix)
		assert.Equal(t, "Streaming", netflix.Category)
		assert.Contains(t, netflix.Tags, "subscription")
		assert.Equal(t, "expense", netflix.TxType)
		assert.Equal(t, int64(1599), netflix.AmountCents)
	})
}

// TestWorkbookStatementFlow runs a generated spreadsheet with serial
// dates end to end, including the raw-upload archive.
func TestWorkbookStatementFlow(t *testing.T) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "Statement")
	require.NoError(t, f.SetSheetRow("Statement", "A1", &[]interface{}{"Date", "Description", "Amount"}))
	// 45306 is 2024-01-15 in the 1900 date system.
	require.NoError(t, f.SetSheetRow("Statement", "A2", &[]interface{}{45306, "Hardware Store", -89.99}))
	require.NoError(t, f.SetSheetRow("Statement", "A3", &[]interface{}{45307, "Refund", 12.50}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	ctx := context.Background()
	userID := uuid.New()
	store := newMemStore()
	arc, err := archive.NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	svc := newService(store, arc)

	in := fileInput("statement.xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())

	out, err := svc.DetectColumns(ctx, userID, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Statement"}, out.Inspection.Sheets)

	receipt, err := svc.Commit(ctx, userID, in, out.Inspection.Suggested, service.CommitOptions{SkipDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Result.Inserted)

	var dates []string
	for _, tx := range store.byHash {
		dates = append(dates, tx.PostedOn.Format("2006-01-02"))
	}
	assert.ElementsMatch(t, []string{"2024-01-15", "2024-01-16"}, dates)

	job, err := svc.JobStatus(ctx, userID, receipt.JobID)
	require.NoError(t, err)
	require.NotNil(t, job.SourceFileID, "raw upload should be archived")

	rc, info, err := arc.Open(ctx, userID, *job.SourceFileID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "statement.xlsx", info.Name)
	assert.Equal(t, int64(len(buf.Bytes())), info.Size)
}

func strPtr(s string) *string { return &s }
