package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/dedupe"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/detect"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/enrich"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/jobs"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/repository"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/rules"
	"github.com/FACorreiaa/bankfeed/pkg/money"
)

// CommitOptions select the write mode for one import run.
type CommitOptions struct {
	// SkipDuplicates leaves an existing transaction untouched when a
	// row's dedupe hash collides with it. This is the default client
	// behavior.
	SkipDuplicates bool
	// Overwrite replaces the stored transaction on collision instead
	// of skipping. Takes precedence over SkipDuplicates.
	Overwrite bool
	// Async queues the run and returns a job id immediately.
	Async bool
	// SaveMappingLabel, when non-empty, persists the mapping under
	// the file's header-set signature after a successful run.
	SaveMappingLabel string
}

// CommitResult summarizes one completed run.
type CommitResult struct {
	TotalProcessed    int                  `json:"totalProcessed"`
	Inserted          int                  `json:"inserted"`
	Updated           int                  `json:"updated"`
	DuplicatesSkipped int                  `json:"duplicatesSkipped"`
	RowErrors         []parser.ImportError `json:"rowErrors,omitempty"`
	UpsertErrors      []string             `json:"upsertErrors,omitempty"`
}

// CommitReceipt is the immediate response. Result is nil for queued
// runs; poll JobStatus with JobID instead.
type CommitReceipt struct {
	JobID  uuid.UUID     `json:"jobId"`
	Status string        `json:"status"`
	Result *CommitResult `json:"result,omitempty"`
}

// Commit runs the full pipeline and writes the normalized rows. Every
// run gets a job record; synchronous runs finish it before returning,
// queued runs return the pending job id.
func (s *Service) Commit(ctx context.Context, userID uuid.UUID, in FileInput, mapping parser.ColumnMapping, opts CommitOptions) (*CommitReceipt, error) {
	if err := s.checkUpload(in); err != nil {
		return nil, err
	}

	job := &repository.ImportJob{UserID: userID, FileName: in.Name}
	if s.archive != nil {
		// Archive failures never block the import itself.
		info, archErr := s.archive.Save(ctx, userID, in.Name, in.ContentType, bytes.NewReader(in.Data))
		if archErr != nil {
			s.logger.Warn("statement archive failed", "error", archErr)
		} else {
			job.SourceFileID = &info.ID
		}
	}
	if err := s.store.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if opts.Async && s.queue != nil {
		task := jobs.Task{
			JobID: job.ID,
			Run: func(runCtx context.Context) {
				s.runCommit(runCtx, userID, job.ID, in, mapping, opts)
			},
		}
		if err := s.queue.Enqueue(task); err != nil {
			msg := err.Error()
			_ = s.store.FinishImportJob(ctx, job.ID, repository.JobFailed,
				&repository.ImportJob{ErrorMessage: &msg})
			return nil, err
		}
		return &CommitReceipt{JobID: job.ID, Status: repository.JobPending}, nil
	}
	if opts.Async {
		s.logger.Warn("async commit requested without a queue, running synchronously")
	}

	result, err := s.runCommit(ctx, userID, job.ID, in, mapping, opts)
	if err != nil {
		return nil, err
	}
	return &CommitReceipt{JobID: job.ID, Status: repository.JobSucceeded, Result: result}, nil
}

// runCommit executes one import run against an existing job record.
func (s *Service) runCommit(ctx context.Context, userID, jobID uuid.UUID, in FileInput, mapping parser.ColumnMapping, opts CommitOptions) (*CommitResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Commit",
		trace.WithAttributes(
			attribute.String("file", in.Name),
			attribute.String("job_id", jobID.String()),
		))
	defer span.End()

	if err := s.store.MarkImportJobRunning(ctx, jobID); err != nil {
		s.logger.Warn("mark job running failed", "error", err)
	}

	result, err := s.commitPipeline(ctx, userID, in, mapping, opts)
	if err != nil {
		msg := err.Error()
		_ = s.store.FinishImportJob(ctx, jobID, repository.JobFailed,
			&repository.ImportJob{ErrorMessage: &msg})
		return nil, err
	}

	_ = s.store.FinishImportJob(ctx, jobID, repository.JobSucceeded, &repository.ImportJob{
		TotalProcessed:    result.TotalProcessed,
		Inserted:          result.Inserted,
		Updated:           result.Updated,
		DuplicatesSkipped: result.DuplicatesSkipped,
		RowErrors:         len(result.RowErrors),
	})
	s.logger.Info("import committed",
		"job_id", jobID.String(),
		"processed", result.TotalProcessed,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.DuplicatesSkipped,
		"row_errors", len(result.RowErrors))
	return result, nil
}

func (s *Service) commitPipeline(ctx context.Context, userID uuid.UUID, in FileInput, mapping parser.ColumnMapping, opts CommitOptions) (*CommitResult, error) {
	parsed, err := s.parse(in, mapping, 0)
	if err != nil {
		return nil, err
	}

	for i := range parsed.Rows {
		tx := &parsed.Rows[i]
		tx.DedupeHash = dedupe.Hash(in.AccountID, tx.Date, tx.Amount, tx.Description)
	}

	s.enrichRows(ctx, parsed.Rows)
	if err := s.applyRules(ctx, userID, parsed.Rows); err != nil {
		s.logger.Warn("rule application skipped", "error", err)
	}

	records := make([]*repository.PersistedTransaction, 0, len(parsed.Rows))
	for i := range parsed.Rows {
		rec, convErr := toPersisted(userID, in.AccountID, &parsed.Rows[i])
		if convErr != nil {
			parsed.Errors = append(parsed.Errors, parser.ImportError{
				Row: parsed.Rows[i].SourceRow, Field: "date", Message: convErr.Error(),
			})
			continue
		}
		records = append(records, rec)
	}

	stats, err := s.store.BulkUpsertByHash(ctx, userID, records, opts.Overwrite)
	if err != nil {
		return nil, fmt.Errorf("bulk upsert: %w", err)
	}

	result := &CommitResult{
		TotalProcessed: parsed.TotalRows,
		Inserted:       stats.Inserted,
		Updated:        stats.Updated,
		RowErrors:      parsed.Errors,
		UpsertErrors:   stats.Errors,
	}
	if opts.SkipDuplicates && !opts.Overwrite {
		result.DuplicatesSkipped = stats.Skipped
	}

	if opts.SaveMappingLabel != "" {
		s.saveMappingFromRun(ctx, userID, in, mapping, opts.SaveMappingLabel)
	}
	return result, nil
}

// enrichRows calls the external classifier best-effort under its own
// timeout. Failures leave the rows as normalized.
func (s *Service) enrichRows(ctx context.Context, rows []parser.ImportableTransaction) {
	if len(rows) == 0 {
		return
	}
	if _, ok := s.classifier.(enrich.Noop); ok {
		return
	}

	// Deduplicate by cleaned description so repeated merchants cost
	// one entry, and bound the batch.
	index := make(map[string]int)
	var entries []enrich.Entry
	for i := range rows {
		key := dedupe.Normalize(rows[i].Description)
		if _, seen := index[key]; seen {
			continue
		}
		if s.limits.EnrichBatchSize > 0 && len(entries) >= s.limits.EnrichBatchSize {
			break
		}
		index[key] = len(entries)
		entries = append(entries, enrich.Entry{
			Description:       rows[i].Description,
			HeuristicMerchant: normalizer.CanonicalMerchant(rows[i].Description),
		})
	}

	timeout := s.limits.EnrichTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	enrichCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	suggestions, err := s.classifier.Classify(enrichCtx, entries)
	if err != nil {
		s.logger.Warn("enrichment skipped", "error", err)
		return
	}

	for i := range rows {
		pos, ok := index[dedupe.Normalize(rows[i].Description)]
		if !ok || pos >= len(suggestions) {
			continue
		}
		sg := suggestions[pos]
		rows[i].MerchantCanonical = sg.Merchant
		rows[i].CategorySuggested = sg.Category
		rows[i].CategoryConfidence = sg.Confidence
	}
}

func (s *Service) applyRules(ctx context.Context, userID uuid.UUID, rows []parser.ImportableTransaction) error {
	ruleSet, err := s.store.ListEnabledRules(ctx, userID)
	if err != nil {
		return err
	}
	if len(ruleSet) == 0 {
		return nil
	}
	matcher := rules.NewMatcher(ruleSet)
	for i := range rows {
		matcher.Apply(&rows[i])
	}
	return nil
}

func (s *Service) saveMappingFromRun(ctx context.Context, userID uuid.UUID, in FileInput, mapping parser.ColumnMapping, label string) {
	kind, err := detect.DetectKind(in.Name, in.ContentType)
	if err != nil {
		return
	}
	insp, err := detect.Inspect(in.Data, kind, in.Sheet)
	if err != nil {
		return
	}
	if err := s.SaveMapping(ctx, userID, insp.Signature, label, mapping); err != nil {
		s.logger.Warn("mapping save failed", "error", err)
	}
}

func toPersisted(userID uuid.UUID, accountID string, tx *parser.ImportableTransaction) (*repository.PersistedTransaction, error) {
	postedOn, err := time.Parse(normalizer.CanonicalDateLayout, tx.Date)
	if err != nil {
		return nil, fmt.Errorf("canonical date %q: %w", tx.Date, err)
	}
	return &repository.PersistedTransaction{
		UserID:             userID,
		AccountID:          accountID,
		PostedOn:           postedOn,
		Description:        tx.Description,
		AmountCents:        money.ToCents(tx.Amount),
		TxType:             string(tx.Type),
		Category:           tx.Category,
		Note:               tx.Note,
		Tags:               tx.Tags,
		MerchantCanonical:  tx.MerchantCanonical,
		CategorySuggested:  tx.CategorySuggested,
		CategoryConfidence: tx.CategoryConfidence,
		DedupeHash:         tx.DedupeHash,
	}, nil
}

// JobStatus returns the job record for polling.
func (s *Service) JobStatus(ctx context.Context, userID, jobID uuid.UUID) (*repository.ImportJob, error) {
	return s.store.GetImportJob(ctx, userID, jobID)
}

// ReplayRules reapplies the user's current rule set to stored
// transactions and returns the number updated.
func (s *Service) ReplayRules(ctx context.Context, userID uuid.UUID) (int, error) {
	ruleSet, err := s.store.ListEnabledRules(ctx, userID)
	if err != nil {
		return 0, err
	}
	matcher := rules.NewMatcher(ruleSet)
	if matcher.Len() == 0 {
		return 0, nil
	}

	const pageSize = 500
	updated := 0
	for offset := 0; ; offset += pageSize {
		page, err := s.store.ListTransactions(ctx, userID, pageSize, offset)
		if err != nil {
			return updated, err
		}
		for _, pt := range page {
			tx := parser.ImportableTransaction{
				Description: pt.Description,
				Category:    pt.Category,
				Note:        pt.Note,
				Tags:        append([]string(nil), pt.Tags...),
			}
			if !matcher.Apply(&tx) {
				continue
			}
			if err := s.store.UpdateClassification(ctx, userID, pt.ID, tx.Category, tx.Tags); err != nil {
				return updated, err
			}
			updated++
		}
		if len(page) < pageSize {
			return updated, nil
		}
	}
}
