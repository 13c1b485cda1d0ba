// Package handler exposes the import pipeline over HTTP: multipart
// uploads in, JSON out.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/detect"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/jobs"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/repository"
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/service"
)

const userHeader = "X-User-ID"

// Handler serves the import endpoints.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
	// maxMemory bounds the in-memory portion of multipart parsing.
	maxMemory int64
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger, maxMemory: 8 << 20}
}

// Register mounts the import routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/import/detect-columns", h.DetectColumns)
	mux.HandleFunc("POST /v1/import/preview", h.Preview)
	mux.HandleFunc("POST /v1/import/commit", h.Commit)
	mux.HandleFunc("GET /v1/import/jobs/{id}", h.JobStatus)
	mux.HandleFunc("POST /v1/import/mappings", h.SaveMapping)
	mux.HandleFunc("POST /v1/import/rules/replay", h.ReplayRules)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", slog.Any("error", err))
	}
}

// writeError maps pipeline failures onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, detect.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, parser.ErrMappingIncomplete),
		errors.Is(err, service.ErrEmptyFile):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrQueueFull):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("import request failed", slog.Any("error", err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeUploadError distinguishes the body cap from plain form errors.
func (h *Handler) writeUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrFileTooLarge) {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func userID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(userHeader)
	if raw == "" {
		return uuid.Nil, errors.New("missing " + userHeader + " header")
	}
	return uuid.Parse(raw)
}

// readUpload extracts the statement file and its companion form fields.
// The body is capped at the socket, with headroom for multipart framing
// and the companion fields, so an oversized upload is cut off instead
// of buffered.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (service.FileInput, error) {
	if limit := h.svc.MaxUploadBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+(64<<10))
	}
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.FileInput{}, fmt.Errorf("%w: body over %d bytes", service.ErrFileTooLarge, tooLarge.Limit)
		}
		return service.FileInput{}, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return service.FileInput{}, errors.New("missing file field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.FileInput{}, err
	}
	return service.FileInput{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		AccountID:   r.FormValue("accountId"),
		Sheet:       r.FormValue("sheet"),
	}, nil
}

func readMapping(r *http.Request) (parser.ColumnMapping, error) {
	raw := r.FormValue("mapping")
	if raw == "" {
		return parser.ColumnMapping{}, parser.ErrMappingIncomplete
	}
	var m parser.ColumnMapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return parser.ColumnMapping{}, errors.New("malformed mapping field")
	}
	return m, nil
}

func formBool(r *http.Request, field string, def bool) bool {
	raw := r.FormValue(field)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (h *Handler) DetectColumns(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	in, err := h.readUpload(w, r)
	if err != nil {
		h.writeUploadError(w, err)
		return
	}
	result, err := h.svc.DetectColumns(r.Context(), uid, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	in, err := h.readUpload(w, r)
	if err != nil {
		h.writeUploadError(w, err)
		return
	}
	mapping, err := readMapping(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.svc.Preview(r.Context(), uid, in, mapping)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	in, err := h.readUpload(w, r)
	if err != nil {
		h.writeUploadError(w, err)
		return
	}
	mapping, err := readMapping(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts := service.CommitOptions{
		SkipDuplicates:   formBool(r, "skipDuplicates", true),
		Overwrite:        formBool(r, "overwrite", false),
		Async:            formBool(r, "async", false),
		SaveMappingLabel: r.FormValue("saveMappingLabel"),
	}
	receipt, err := h.svc.Commit(r.Context(), uid, in, mapping, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// A completed run answers 200 even when async was requested, e.g.
	// when no queue is configured and the run fell back to synchronous.
	status := http.StatusOK
	if receipt.Status == repository.JobPending {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, receipt)
}

func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed job id"})
		return
	}
	job, err := h.svc.JobStatus(r.Context(), uid, jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

type saveMappingRequest struct {
	Signature string               `json:"signature"`
	Label     string               `json:"label"`
	Mapping   parser.ColumnMapping `json:"mapping"`
}

func (h *Handler) SaveMapping(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	var req saveMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := h.svc.SaveMapping(r.Context(), uid, req.Signature, req.Label, req.Mapping); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReplayRules(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	updated, err := h.svc.ReplayRules(r.Context(), uid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
