package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pipeline"
	"github.com/fieldlens-tech/fieldlens/internal/store"
)

// ErrInvalidInput reports a malformed document id.
var ErrInvalidInput = errors.New("invalid input")

// DocumentStore is the slice of the store the processor needs for
// document state.
type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	ClaimForProcessing(ctx context.Context, id uuid.UUID, force bool) error
	MarkReady(ctx context.Context, id uuid.UUID, pageCount int, acroform bool, fingerprint string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

// RegionStore persists detected field regions.
type RegionStore interface {
	DeleteRegions(ctx context.Context, documentID uuid.UUID) error
	ReplaceRegions(ctx context.Context, documentID uuid.UUID, dets []field.Detection) error
}

// Downloader fetches stored documents to the local filesystem.
type Downloader interface {
	Download(ctx context.Context, key, localPath string) error
}

// FieldDetector runs the detection pipeline over one document.
type FieldDetector interface {
	Detect(ctx context.Context, pdfPath, documentID string) (*pipeline.Result, error)
}

// ProcessResult summarizes one processing run.
type ProcessResult struct {
	DocumentID     string         `json:"document_id"`
	Status         string         `json:"status"`
	FieldsFound    int            `json:"fields_found"`
	PageCount      int            `json:"page_count"`
	AcroForm       bool           `json:"acroform"`
	FieldsBySource map[string]int `json:"fields_by_source"`
	FieldsByPage   map[int]int    `json:"fields_by_page"`
}

// Processor owns the full processing of a single document: claim, fetch,
// detect, persist. Every document is processed under an exclusive claim,
// so any number of processors can run against the same database.
type Processor struct {
	docs     DocumentStore
	regions  RegionStore
	files    Downloader
	detector FieldDetector
}

// NewProcessor wires a processor from its collaborators.
func NewProcessor(docs DocumentStore, regions RegionStore, files Downloader, detector FieldDetector) *Processor {
	return &Processor{docs: docs, regions: regions, files: files, detector: detector}
}

// ProcessDocument runs the pipeline for one document id and records the
// outcome. Claim conflicts surface as store.ErrAlreadyClaimed before any
// state is touched; later failures mark the document failed.
func (p *Processor) ProcessDocument(ctx context.Context, documentID string, force bool) (*ProcessResult, error) {
	id, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: document id %q", ErrInvalidInput, documentID)
	}

	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.docs.ClaimForProcessing(ctx, id, force); err != nil {
		return nil, err
	}
	slog.Info("Claimed document", "document", id, "force", force)

	res, err := p.run(ctx, id, doc, force)
	if err != nil {
		slog.Error("Processing failed", "document", id, "error", err)
		if markErr := p.docs.MarkFailed(ctx, id, err.Error()); markErr != nil {
			slog.Error("Recording failure state failed", "document", id, "error", markErr)
		}
		return nil, err
	}
	return res, nil
}

func (p *Processor) run(ctx context.Context, id uuid.UUID, doc *store.Document, force bool) (*ProcessResult, error) {
	tmp, err := os.CreateTemp("", "fieldlens-*.pdf")
	if err != nil {
		return nil, fail("StorageFailure", fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := p.files.Download(ctx, doc.StorageKeyOriginal, tmpPath); err != nil {
		return nil, fail("StorageFailure", fmt.Errorf("downloading %s: %w", doc.StorageKeyOriginal, err))
	}

	if force {
		if err := p.regions.DeleteRegions(ctx, id); err != nil {
			return nil, fail("PersistenceFailure", fmt.Errorf("clearing regions: %w", err))
		}
		slog.Info("Deleted existing regions", "document", id)
	}

	detected, err := p.detector.Detect(ctx, tmpPath, id.String())
	if err != nil {
		return nil, fail("RenderFailure", err)
	}

	acroform := detected.BySource[field.SourceStructure] > 0

	if err := p.regions.ReplaceRegions(ctx, id, detected.Fields); err != nil {
		return nil, fail("PersistenceFailure", err)
	}

	fingerprint := fingerprintFile(tmpPath)
	if err := p.docs.MarkReady(ctx, id, detected.PageCount, acroform, fingerprint); err != nil {
		return nil, fail("PersistenceFailure", err)
	}

	res := summarize(id, detected, acroform)
	slog.Info("Document processed",
		"document", id,
		"fields", res.FieldsFound,
		"pages", res.PageCount,
		"acroform", acroform,
		"duration", detected.Timings.Total)
	return res, nil
}

func summarize(id uuid.UUID, detected *pipeline.Result, acroform bool) *ProcessResult {
	bySource := make(map[string]int, len(detected.BySource))
	for src, n := range detected.BySource {
		bySource[string(src)] = n
	}
	byPage := make(map[int]int, len(detected.ByPage))
	for page, n := range detected.ByPage {
		byPage[page] = n
	}
	return &ProcessResult{
		DocumentID:     id.String(),
		Status:         store.StatusReady,
		FieldsFound:    len(detected.Fields),
		PageCount:      detected.PageCount,
		AcroForm:       acroform,
		FieldsBySource: bySource,
		FieldsByPage:   byPage,
	}
}

// fingerprintFile hashes the document bytes. Hashing problems only cost
// the fingerprint, never the run.
func fingerprintFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("Skipping fingerprint", "path", path, "error", err)
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		slog.Warn("Skipping fingerprint", "path", path, "error", err)
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// failure tags an error with its taxonomy kind, which leads the stored
// error_message.
type failure struct {
	kind string
	err  error
}

func (f *failure) Error() string { return f.kind + ": " + f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(kind string, err error) error { return &failure{kind: kind, err: err} }
