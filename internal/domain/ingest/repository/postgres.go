package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/rules"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("repository: not found")

// Querier is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Postgres implements Store on top of pgx.
type Postgres struct {
	db Querier
}

func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindRecentHashes(ctx context.Context, userID uuid.UUID, limit int) (map[string]struct{}, error) {
	rows, err := p.db.Query(ctx, `
		SELECT dedupe_hash
		FROM transactions
		WHERE user_id = $1
		ORDER BY posted_on DESC, created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("find recent hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

func (p *Postgres) RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]RecentTransaction, error) {
	rows, err := p.db.Query(ctx, `
		SELECT posted_on, amount_cents, description, dedupe_hash
		FROM transactions
		WHERE user_id = $1
		ORDER BY posted_on DESC, created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	defer rows.Close()

	var out []RecentTransaction
	for rows.Next() {
		var t RecentTransaction
		if err := rows.Scan(&t.PostedOn, &t.AmountCents, &t.Description, &t.DedupeHash); err != nil {
			return nil, fmt.Errorf("scan recent transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const insertSkipSQL = `
	INSERT INTO transactions (
		id, user_id, account_id, posted_on, description, amount_cents,
		tx_type, category, note, tags, merchant_canonical,
		category_suggested, category_confidence, dedupe_hash
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (user_id, dedupe_hash) DO NOTHING`

const insertOverwriteSQL = `
	INSERT INTO transactions (
		id, user_id, account_id, posted_on, description, amount_cents,
		tx_type, category, note, tags, merchant_canonical,
		category_suggested, category_confidence, dedupe_hash
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (user_id, dedupe_hash) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		posted_on = EXCLUDED.posted_on,
		description = EXCLUDED.description,
		amount_cents = EXCLUDED.amount_cents,
		tx_type = EXCLUDED.tx_type,
		category = EXCLUDED.category,
		note = EXCLUDED.note,
		tags = EXCLUDED.tags,
		merchant_canonical = EXCLUDED.merchant_canonical,
		category_suggested = EXCLUDED.category_suggested,
		category_confidence = EXCLUDED.category_confidence,
		updated_at = now()
	RETURNING (xmax = 0)`

func (p *Postgres) BulkUpsertByHash(ctx context.Context, userID uuid.UUID, records []*PersistedTransaction, overwrite bool) (*UpsertStats, error) {
	stats := &UpsertStats{}
	if len(records) == 0 {
		return stats, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		id := r.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		sql := insertSkipSQL
		if overwrite {
			sql = insertOverwriteSQL
		}
		batch.Queue(sql,
			id, userID, r.AccountID, r.PostedOn, r.Description, r.AmountCents,
			r.TxType, r.Category, r.Note, r.Tags, r.MerchantCanonical,
			r.CategorySuggested, r.CategoryConfidence, r.DedupeHash)
	}

	br := p.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if overwrite {
			var inserted bool
			if err := br.QueryRow().Scan(&inserted); err != nil {
				stats.Failed++
				stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: %v", i, err))
				continue
			}
			if inserted {
				stats.Inserted++
			} else {
				stats.Updated++
			}
			continue
		}
		tag, err := br.Exec()
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		if tag.RowsAffected() > 0 {
			stats.Inserted++
		} else {
			stats.Skipped++
		}
	}
	return stats, nil
}

func (p *Postgres) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PersistedTransaction, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, user_id, account_id, posted_on, description, amount_cents,
		       tx_type, category, note, tags, merchant_canonical,
		       category_suggested, category_confidence, dedupe_hash,
		       created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY posted_on DESC, created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*PersistedTransaction
	for rows.Next() {
		t := &PersistedTransaction{}
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.AccountID, &t.PostedOn, &t.Description, &t.AmountCents,
			&t.TxType, &t.Category, &t.Note, &t.Tags, &t.MerchantCanonical,
			&t.CategorySuggested, &t.CategoryConfidence, &t.DedupeHash,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateClassification(ctx context.Context, userID, id uuid.UUID, category string, tags []string) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE transactions
		SET category = $3, tags = $4, updated_at = now()
		WHERE user_id = $1 AND id = $2`, userID, id, category, tags)
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetMappingBySignature(ctx context.Context, userID uuid.UUID, signature string) (*SavedMapping, error) {
	m := &SavedMapping{}
	var raw []byte
	err := p.db.QueryRow(ctx, `
		SELECT id, user_id, signature, label, mapping, created_at, updated_at
		FROM bank_mappings
		WHERE user_id = $1 AND signature = $2`, userID, signature).
		Scan(&m.ID, &m.UserID, &m.Signature, &m.Label, &raw, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	if err := json.Unmarshal(raw, &m.Mapping); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	return m, nil
}

func (p *Postgres) SaveMapping(ctx context.Context, m *SavedMapping) error {
	raw, err := json.Marshal(m.Mapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO bank_mappings (id, user_id, signature, label, mapping)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, signature) DO UPDATE SET
			label = EXCLUDED.label,
			mapping = EXCLUDED.mapping,
			updated_at = now()`,
		m.ID, m.UserID, m.Signature, m.Label, raw)
	if err != nil {
		return fmt.Errorf("save mapping: %w", err)
	}
	return nil
}

func (p *Postgres) ListEnabledRules(ctx context.Context, userID uuid.UUID) ([]rules.Rule, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, rule_order, created_at, field, match_kind, value,
		       set_category, set_tags, enabled
		FROM import_rules
		WHERE user_id = $1 AND enabled
		ORDER BY rule_order ASC, created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var r rules.Rule
		if err := rows.Scan(
			&r.ID, &r.Order, &r.CreatedAt, &r.Field, &r.MatchKind, &r.Value,
			&r.SetCategory, &r.SetTags, &r.Enabled,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateImportJob(ctx context.Context, job *ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobPending
	}
	_, err := p.db.Exec(ctx, `
		INSERT INTO import_jobs (id, user_id, file_name, source_file_id, status)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.UserID, job.FileName, job.SourceFileID, job.Status)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

func (p *Postgres) MarkImportJobRunning(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, started_at = now()
		WHERE id = $1`, id, JobRunning)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return nil
}

func (p *Postgres) FinishImportJob(ctx context.Context, id uuid.UUID, status string, job *ImportJob) error {
	_, err := p.db.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2,
		    total_processed = $3,
		    inserted = $4,
		    updated = $5,
		    duplicates_skipped = $6,
		    row_errors = $7,
		    error_message = $8,
		    finished_at = now()
		WHERE id = $1`,
		id, status, job.TotalProcessed, job.Inserted, job.Updated,
		job.DuplicatesSkipped, job.RowErrors, job.ErrorMessage)
	if err != nil {
		return fmt.Errorf("finish import job: %w", err)
	}
	return nil
}

func (p *Postgres) GetImportJob(ctx context.Context, userID, id uuid.UUID) (*ImportJob, error) {
	j := &ImportJob{}
	err := p.db.QueryRow(ctx, `
		SELECT id, user_id, file_name, source_file_id, status, total_processed,
		       inserted, updated, duplicates_skipped, row_errors, error_message,
		       created_at, started_at, finished_at
		FROM import_jobs
		WHERE user_id = $1 AND id = $2`, userID, id).
		Scan(&j.ID, &j.UserID, &j.FileName, &j.SourceFileID, &j.Status, &j.TotalProcessed,
			&j.Inserted, &j.Updated, &j.DuplicatesSkipped, &j.RowErrors, &j.ErrorMessage,
			&j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return j, nil
}

func (p *Postgres) DeleteFinishedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `
		DELETE FROM import_jobs
		WHERE status IN ($1, $2) AND finished_at < $3`,
		JobSucceeded, JobFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune import jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*Postgres)(nil)
