// Package service coordinates the import pipeline: format detection,
// parsing, normalization, enrichment, rule application and the final
// deduplicated upsert.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/categorizer"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/detect"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/enrich"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/jobs"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/repository"
	"github.com/FACorreiaa/bankfeed/pkg/archive"
)

var (
	// ErrFileTooLarge rejects an upload before any parsing happens.
	ErrFileTooLarge = errors.New("upload exceeds size limit")
	// ErrEmptyFile rejects zero-byte uploads.
	ErrEmptyFile = errors.New("uploaded file is empty")
)

// Limits bound one import run.
type Limits struct {
	MaxUploadBytes   int64
	PreviewRows      int
	RecentHashWindow int
	EnrichBatchSize  int
	EnrichTimeout    time.Duration
}

// DefaultLimits mirror the service defaults used when config leaves a
// limit unset.
func DefaultLimits() Limits {
	return Limits{
		MaxUploadBytes:   10 << 20,
		PreviewRows:      50,
		RecentHashWindow: 1000,
		EnrichBatchSize:  100,
		EnrichTimeout:    5 * time.Second,
	}
}

// FileInput is one uploaded statement file.
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
	AccountID   string
	Sheet       string
}

// Service wires the pipeline stages together.
type Service struct {
	store      repository.Store
	classifier enrich.Classifier
	engine     *categorizer.Engine
	queue      *jobs.Queue
	archive    archive.Archive
	limits     Limits
	logger     *slog.Logger
	tracer     trace.Tracer
}

func New(store repository.Store, classifier enrich.Classifier, engine *categorizer.Engine, queue *jobs.Queue, arc archive.Archive, limits Limits, logger *slog.Logger) *Service {
	if classifier == nil {
		classifier = enrich.Noop{}
	}
	if engine == nil {
		engine = categorizer.NewEngine(categorizer.DefaultTable)
	}
	return &Service{
		store:      store,
		classifier: classifier,
		engine:     engine,
		queue:      queue,
		archive:    arc,
		limits:     limits,
		logger:     logger,
		tracer:     otel.Tracer("ingest/service"),
	}
}

// MaxUploadBytes reports the configured upload cap, zero when
// unbounded. Transports use it to stop oversized bodies at the socket.
func (s *Service) MaxUploadBytes() int64 {
	return s.limits.MaxUploadBytes
}

func (s *Service) checkUpload(in FileInput) error {
	if len(in.Data) == 0 {
		return ErrEmptyFile
	}
	if s.limits.MaxUploadBytes > 0 && int64(len(in.Data)) > s.limits.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(in.Data), s.limits.MaxUploadBytes)
	}
	return nil
}

// DetectResult is the column inspection plus any mapping the user saved
// for this header shape on a previous upload.
type DetectResult struct {
	Inspection   *detect.Inspection    `json:"inspection"`
	SavedMapping *parser.ColumnMapping `json:"savedMapping,omitempty"`
	SavedLabel   string                `json:"savedLabel,omitempty"`
}

// DetectColumns inspects the upload's structure and recalls a saved
// mapping by header-set signature when one exists.
func (s *Service) DetectColumns(ctx context.Context, userID uuid.UUID, in FileInput) (*DetectResult, error) {
	if err := s.checkUpload(in); err != nil {
		return nil, err
	}
	kind, err := detect.DetectKind(in.Name, in.ContentType)
	if err != nil {
		return nil, err
	}
	insp, err := detect.Inspect(in.Data, kind, in.Sheet)
	if err != nil {
		return nil, err
	}

	out := &DetectResult{Inspection: insp}
	saved, err := s.store.GetMappingBySignature(ctx, userID, insp.Signature)
	switch {
	case err == nil:
		out.SavedMapping = &saved.Mapping
		out.SavedLabel = saved.Label
	case errors.Is(err, repository.ErrNotFound):
		// First time this shape is seen.
	default:
		s.logger.Warn("saved mapping lookup failed", slog.Any("error", err))
	}
	return out, nil
}

// SaveMapping persists a confirmed mapping under the header-set
// signature so DetectColumns can recall it.
func (s *Service) SaveMapping(ctx context.Context, userID uuid.UUID, signature, label string, mapping parser.ColumnMapping) error {
	if signature == "" {
		return errors.New("mapping signature required")
	}
	if mapping.Date == "" || mapping.Description == "" || mapping.Amount == "" {
		return parser.ErrMappingIncomplete
	}
	return s.store.SaveMapping(ctx, &repository.SavedMapping{
		UserID:    userID,
		Signature: signature,
		Label:     label,
		Mapping:   mapping,
	})
}

// buildSource opens the right row source for the detected format and
// reports whether the 1904 date system applies.
func (s *Service) buildSource(in FileInput) (parser.RowSource, bool, func(), error) {
	kind, err := detect.DetectKind(in.Name, in.ContentType)
	if err != nil {
		return nil, false, nil, err
	}
	switch kind {
	case detect.KindCSV:
		src, err := parser.NewCSVSource(in.Data, detect.SniffDelimiter(in.Data))
		if err != nil {
			return nil, false, nil, err
		}
		return src, false, func() {}, nil
	case detect.KindXLSX:
		src, err := parser.NewXLSXSource(in.Data, in.Sheet)
		if err != nil {
			return nil, false, nil, err
		}
		return src, src.Uses1904(), func() { _ = src.Close() }, nil
	case detect.KindXLS:
		src, err := parser.NewXLSSource(in.Data, in.Sheet)
		if err != nil {
			return nil, false, nil, err
		}
		return src, false, func() {}, nil
	}
	return nil, false, nil, detect.ErrUnsupportedFormat
}

func (s *Service) parse(in FileInput, mapping parser.ColumnMapping, previewLimit int) (*parser.Result, error) {
	src, use1904, closer, err := s.buildSource(in)
	if err != nil {
		return nil, err
	}
	defer closer()

	if err := mapping.Validate(src.Headers()); err != nil {
		return nil, err
	}
	return parser.Parse(src, mapping, parser.ParseOptions{
		PreviewLimit: previewLimit,
		Use1904:      use1904,
		Categorize:   s.engine.Categorize,
	})
}
