package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/rules"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Postgres) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgres(mock)
}

func TestFindRecentHashes(t *testing.T) {
	mock, repo := newMock(t)
	userID := uuid.New()

	rows := pgxmock.NewRows([]string{"dedupe_hash"}).
		AddRow("hash-a").
		AddRow("hash-b")
	mock.ExpectQuery("SELECT dedupe_hash").
		WithArgs(userID, 1000).
		WillReturnRows(rows)

	hashes, err := repo.FindRecentHashes(context.Background(), userID, 1000)
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
	_, ok := hashes["hash-a"]
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// upsertArgs returns one AnyArg per bound parameter of the 14-column
// transaction upsert statements.
func upsertArgs() []any {
	args := make([]any, 14)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestBulkUpsertByHash(t *testing.T) {
	userID := uuid.New()
	records := []*PersistedTransaction{
		{
			PostedOn:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Description: "Coffee Shop",
			AmountCents: 450,
			TxType:      "expense",
			DedupeHash:  "hash-a",
		},
		{
			PostedOn:    time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
			Description: "Salary",
			AmountCents: 500000,
			TxType:      "income",
			DedupeHash:  "hash-b",
		},
	}

	t.Run("skip mode counts inserts and skips", func(t *testing.T) {
		mock, repo := newMock(t)

		eb := mock.ExpectBatch()
		eb.ExpectExec("INSERT INTO transactions").
			WithArgs(upsertArgs()...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		eb.ExpectExec("INSERT INTO transactions").
			WithArgs(upsertArgs()...).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		stats, err := repo.BulkUpsertByHash(context.Background(), userID, records, false)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Inserted)
		assert.Equal(t, 1, stats.Skipped)
		assert.Equal(t, 0, stats.Failed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overwrite mode distinguishes inserts from updates", func(t *testing.T) {
		mock, repo := newMock(t)

		eb := mock.ExpectBatch()
		eb.ExpectQuery("INSERT INTO transactions").
			WithArgs(upsertArgs()...).
			WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(true))
		eb.ExpectQuery("INSERT INTO transactions").
			WithArgs(upsertArgs()...).
			WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(false))

		stats, err := repo.BulkUpsertByHash(context.Background(), userID, records, true)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Inserted)
		assert.Equal(t, 1, stats.Updated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty input short-circuits", func(t *testing.T) {
		_, repo := newMock(t)
		stats, err := repo.BulkUpsertByHash(context.Background(), userID, nil, false)
		require.NoError(t, err)
		assert.Zero(t, stats.Inserted)
	})
}

func TestGetMappingBySignature(t *testing.T) {
	mock, repo := newMock(t)
	userID := uuid.New()
	mappingID := uuid.New()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		raw := []byte(`{"date":"Date","description":"Description","amount":"Amount"}`)
		rows := pgxmock.NewRows([]string{"id", "user_id", "signature", "label", "mapping", "created_at", "updated_at"}).
			AddRow(mappingID, userID, "sig-1", "My Bank", raw, now, now)
		mock.ExpectQuery("SELECT id, user_id, signature").
			WithArgs(userID, "sig-1").
			WillReturnRows(rows)

		m, err := repo.GetMappingBySignature(context.Background(), userID, "sig-1")
		require.NoError(t, err)
		assert.Equal(t, "My Bank", m.Label)
		assert.Equal(t, "Date", m.Mapping.Date)
	})

	t.Run("missing maps to ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, signature").
			WithArgs(userID, "sig-2").
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		_, err := repo.GetMappingBySignature(context.Background(), userID, "sig-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListEnabledRules(t *testing.T) {
	mock, repo := newMock(t)
	userID := uuid.New()
	ruleID := uuid.New()
	cat := "Streaming"

	rows := pgxmock.NewRows([]string{
		"id", "rule_order", "created_at", "field", "match_kind", "value",
		"set_category", "set_tags", "enabled",
	}).AddRow(ruleID, 1, time.Now(), "description", "contains", "netflix", &cat, []string{"subscription"}, true)

	mock.ExpectQuery("SELECT id, rule_order").
		WithArgs(userID).
		WillReturnRows(rows)

	got, err := repo.ListEnabledRules(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rules.MatchContains, got[0].MatchKind)
	assert.Equal(t, "netflix", got[0].Value)
	require.NotNil(t, got[0].SetCategory)
	assert.Equal(t, "Streaming", *got[0].SetCategory)
}

func TestImportJobs(t *testing.T) {
	mock, repo := newMock(t)
	userID := uuid.New()

	t.Run("create defaults status to pending", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO import_jobs").
			WithArgs(pgxmock.AnyArg(), userID, "statement.csv", pgxmock.AnyArg(), JobPending).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		job := &ImportJob{UserID: userID, FileName: "statement.csv"}
		require.NoError(t, repo.CreateImportJob(context.Background(), job))
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, JobPending, job.Status)
	})

	t.Run("finish writes counters", func(t *testing.T) {
		jobID := uuid.New()
		mock.ExpectExec("UPDATE import_jobs").
			WithArgs(jobID, JobSucceeded, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.FinishImportJob(context.Background(), jobID, JobSucceeded, &ImportJob{
			TotalProcessed: 3, Inserted: 2, DuplicatesSkipped: 1,
		})
		require.NoError(t, err)
	})

	t.Run("missing job maps to ErrNotFound", func(t *testing.T) {
		jobID := uuid.New()
		mock.ExpectQuery("SELECT id, user_id, file_name").
			WithArgs(userID, jobID).
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		_, err := repo.GetImportJob(context.Background(), userID, jobID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteFinishedJobsBefore(t *testing.T) {
	mock, repo := newMock(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM import_jobs").
		WithArgs(JobSucceeded, JobFailed, cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := repo.DeleteFinishedJobsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
