// Package repository provides data access for the import pipeline:
// transaction upserts keyed by dedupe hash, saved column mappings,
// import rules, and import job records.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/rules"
)

// PersistedTransaction is the stored form of an imported transaction.
// The integer minor-unit amount is the source of truth; the sign lives
// in TxType, never in the amount.
type PersistedTransaction struct {
	ID                 uuid.UUID  `db:"id"`
	UserID             uuid.UUID  `db:"user_id"`
	AccountID          string     `db:"account_id"`
	PostedOn           time.Time  `db:"posted_on"`
	Description        string     `db:"description"`
	AmountCents        int64      `db:"amount_cents"`
	TxType             string     `db:"tx_type"`
	Category           string     `db:"category"`
	Note               string     `db:"note"`
	Tags               []string   `db:"tags"`
	MerchantCanonical  string     `db:"merchant_canonical"`
	CategorySuggested  string     `db:"category_suggested"`
	CategoryConfidence float64    `db:"category_confidence"`
	DedupeHash         string     `db:"dedupe_hash"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// RecentTransaction is the projection used by the preview duplicate
// heuristic: enough to compare same-date/same-amount/similar-description.
type RecentTransaction struct {
	PostedOn    time.Time
	AmountCents int64
	Description string
	DedupeHash  string
}

// SavedMapping is a user's confirmed column mapping, keyed by the
// order-independent header-set signature so the same statement shape
// is recognized on the next upload.
type SavedMapping struct {
	ID        uuid.UUID            `db:"id"`
	UserID    uuid.UUID            `db:"user_id"`
	Signature string               `db:"signature"`
	Label     string               `db:"label"`
	Mapping   parser.ColumnMapping `db:"mapping"`
	CreatedAt time.Time            `db:"created_at"`
	UpdatedAt time.Time            `db:"updated_at"`
}

// Import job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// ImportJob tracks one commit run, synchronous or queued. It is also
// the job status payload returned to clients.
type ImportJob struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            uuid.UUID  `db:"user_id" json:"-"`
	FileName          string     `db:"file_name" json:"fileName"`
	SourceFileID      *uuid.UUID `db:"source_file_id" json:"sourceFileId,omitempty"`
	Status            string     `db:"status" json:"status"`
	TotalProcessed    int        `db:"total_processed" json:"totalProcessed"`
	Inserted          int        `db:"inserted" json:"inserted"`
	Updated           int        `db:"updated" json:"updated"`
	DuplicatesSkipped int        `db:"duplicates_skipped" json:"duplicatesSkipped"`
	RowErrors         int        `db:"row_errors" json:"rowErrors"`
	ErrorMessage      *string    `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	StartedAt         *time.Time `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt        *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
}

// UpsertStats aggregates one bulk upsert. The batch is not atomic:
// some rows may apply while others fail, and per-row failures are
// reported rather than failing the whole call.
type UpsertStats struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
	Errors   []string
}

// Store is the persistent collaborator of the commit coordinator.
type Store interface {
	// FindRecentHashes returns the dedupe hashes of a user's most
	// recent transactions, bounding the preview duplicate check.
	FindRecentHashes(ctx context.Context, userID uuid.UUID, limit int) (map[string]struct{}, error)

	// RecentTransactions returns recent rows for the heuristic
	// duplicate comparison.
	RecentTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]RecentTransaction, error)

	// BulkUpsertByHash issues one conditional upsert per record,
	// keyed by (user_id, dedupe_hash): insert-if-absent by default,
	// overwrite-on-conflict when overwrite is set.
	BulkUpsertByHash(ctx context.Context, userID uuid.UUID, records []*PersistedTransaction, overwrite bool) (*UpsertStats, error)

	// ListTransactions pages a user's stored transactions, newest
	// first, for rule replay.
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PersistedTransaction, error)

	// UpdateClassification rewrites category and tags on one stored
	// transaction.
	UpdateClassification(ctx context.Context, userID, id uuid.UUID, category string, tags []string) error

	// Saved mappings, keyed by header-set signature.
	GetMappingBySignature(ctx context.Context, userID uuid.UUID, signature string) (*SavedMapping, error)
	SaveMapping(ctx context.Context, m *SavedMapping) error

	// Rule store: ordered, enabled rules for a user.
	ListEnabledRules(ctx context.Context, userID uuid.UUID) ([]rules.Rule, error)

	// Import jobs.
	CreateImportJob(ctx context.Context, job *ImportJob) error
	MarkImportJobRunning(ctx context.Context, id uuid.UUID) error
	FinishImportJob(ctx context.Context, id uuid.UUID, status string, job *ImportJob) error
	GetImportJob(ctx context.Context, userID, id uuid.UUID) (*ImportJob, error)
	DeleteFinishedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
