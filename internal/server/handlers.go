package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldlens-tech/fieldlens/internal/store"
	"github.com/fieldlens-tech/fieldlens/internal/version"
	"github.com/fieldlens-tech/fieldlens/internal/worker"
)

// healthHandler reports liveness plus the running version.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Encoding health response failed", "error", err)
	}
}

// processHandler runs field detection for one queued document.
func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		s.writeErrorResponse(w, "document_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	res, err := s.processor.ProcessDocument(ctx, req.DocumentID, req.Force)
	if err != nil {
		processRequestsTotal.WithLabelValues("http", "error").Inc()
		s.writeErrorResponse(w, err.Error(), statusForError(err))
		return
	}

	processRequestsTotal.WithLabelValues("http", "success").Inc()
	processDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	fieldsDetected.WithLabelValues("http").Observe(float64(res.FieldsFound))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Encoding process response failed", "error", err)
	}
}

// fieldsHandler serves GET /documents/{id}/fields from the store.
func (s *Server) fieldsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	idPart, tail, _ := strings.Cut(rest, "/")
	if idPart == "" || tail != "fields" {
		s.writeErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Invalid document id %q", idPart), http.StatusBadRequest)
		return
	}

	if s.regions == nil {
		s.writeErrorResponse(w, "Store not configured", http.StatusServiceUnavailable)
		return
	}
	fields, err := s.regions.ListRegions(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), statusForError(err))
		return
	}

	response := FieldsResponse{
		DocumentID: id.String(),
		Fields:     fields,
		Count:      len(fields),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Encoding fields response failed", "error", err)
	}
}

// statusForError maps processing errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, worker.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyClaimed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorResponse sends the error payload with the given status.
func (s *Server) writeErrorResponse(w http.ResponseWriter, detail string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Detail: detail}); err != nil {
		slog.Error("Encoding error response failed", "error", err)
	}
}
