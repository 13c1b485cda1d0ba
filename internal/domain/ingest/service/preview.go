package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/dedupe"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/repository"
	"github.com/FACorreiaa/bankfeed/pkg/money"
)

// DuplicateHint flags one previewed row as a likely re-import.
type DuplicateHint struct {
	Row int `json:"row"`
	// Exact means the dedupe hash matched a stored transaction.
	// Otherwise the match is heuristic: same date, same amount,
	// similar description.
	Exact bool `json:"exact"`
}

// PreviewResult is the capped dry run returned before any write.
type PreviewResult struct {
	Transactions []parser.ImportableTransaction `json:"transactions"`
	TotalRows    int                            `json:"totalRows"`
	Errors       []parser.ImportError           `json:"errors,omitempty"`
	Truncated    bool                           `json:"truncated"`
	Duplicates   []DuplicateHint                `json:"duplicates,omitempty"`
}

// Preview normalizes up to the preview cap and estimates which rows
// already exist, comparing against the user's recent transactions.
// Nothing is written.
func (s *Service) Preview(ctx context.Context, userID uuid.UUID, in FileInput, mapping parser.ColumnMapping) (*PreviewResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Preview",
		trace.WithAttributes(attribute.String("file", in.Name)))
	defer span.End()

	if err := s.checkUpload(in); err != nil {
		return nil, err
	}
	result, err := s.parse(in, mapping, s.limits.PreviewRows)
	if err != nil {
		return nil, err
	}

	for i := range result.Rows {
		tx := &result.Rows[i]
		tx.DedupeHash = dedupe.Hash(in.AccountID, tx.Date, tx.Amount, tx.Description)
	}

	out := &PreviewResult{
		Transactions: result.Rows,
		TotalRows:    result.TotalRows,
		Errors:       result.Errors,
		Truncated:    result.Truncated,
	}
	out.Duplicates = s.estimateDuplicates(ctx, userID, result.Rows)
	span.SetAttributes(
		attribute.Int("rows", len(result.Rows)),
		attribute.Int("duplicates", len(out.Duplicates)),
	)
	return out, nil
}

// estimateDuplicates is advisory only: the commit upsert is the source
// of truth. A store failure degrades to no hints.
func (s *Service) estimateDuplicates(ctx context.Context, userID uuid.UUID, rows []parser.ImportableTransaction) []DuplicateHint {
	if len(rows) == 0 {
		return nil
	}
	hashes, err := s.store.FindRecentHashes(ctx, userID, s.limits.RecentHashWindow)
	if err != nil {
		s.logger.Warn("recent hash lookup failed", "error", err)
		return nil
	}
	recent, err := s.store.RecentTransactions(ctx, userID, s.limits.RecentHashWindow)
	if err != nil {
		s.logger.Warn("recent transaction lookup failed", "error", err)
		recent = nil
	}

	var hints []DuplicateHint
	for _, tx := range rows {
		if _, ok := hashes[tx.DedupeHash]; ok {
			hints = append(hints, DuplicateHint{Row: tx.SourceRow, Exact: true})
			continue
		}
		if fuzzyMatch(tx, recent) {
			hints = append(hints, DuplicateHint{Row: tx.SourceRow})
		}
	}
	return hints
}

func fuzzyMatch(tx parser.ImportableTransaction, recent []repository.RecentTransaction) bool {
	cents := money.ToCents(tx.Amount)
	desc := dedupe.Normalize(tx.Description)
	for _, r := range recent {
		if r.PostedOn.Format(normalizer.CanonicalDateLayout) != tx.Date {
			continue
		}
		if r.AmountCents != cents && r.AmountCents != -cents {
			continue
		}
		if similarDescriptions(desc, dedupe.Normalize(r.Description)) {
			return true
		}
	}
	return false
}

// similarDescriptions tolerates small edits such as shifting reference
// numbers inside one merchant's descriptor.
func similarDescriptions(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return false
	}
	limit := n / 4
	if limit < 2 {
		limit = 2
	}
	return fuzzy.LevenshteinDistance(a, b) <= limit
}
