package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Document status values.
const (
	StatusImported   = "imported"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFilling    = "filling"
	StatusFilled     = "filled"
	StatusFailed     = "failed"
)

// Document is one uploaded PDF and its processing state.
type Document struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	UserID             *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FileName           string     `db:"file_name" json:"file_name"`
	MimeType           string     `db:"mime_type" json:"mime_type"`
	StorageKeyOriginal string     `db:"storage_key_original" json:"storage_key_original"`
	StorageKeyFilled   *string    `db:"storage_key_filled" json:"storage_key_filled,omitempty"`
	Status             string     `db:"status" json:"status"`
	PageCount          *int       `db:"page_count" json:"page_count,omitempty"`
	HashFingerprint    *string    `db:"hash_fingerprint" json:"hash_fingerprint,omitempty"`
	AcroForm           bool       `db:"acroform" json:"acroform"`
	ErrorMessage       *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// claimableFrom returns the statuses a processing claim may transition
// from. A forced claim may restart anything that is not actively owned
// by another worker.
func claimableFrom(force bool) []string {
	if force {
		return []string{StatusImported, StatusReady, StatusFilling, StatusFilled, StatusFailed}
	}
	return []string{StatusImported, StatusFailed}
}

// CreateDocument inserts a new document row. Zero ID and timestamps are
// filled in.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = StatusImported
	}
	if doc.MimeType == "" {
		doc.MimeType = "application/pdf"
	}
	const q = `
		INSERT INTO documents (id, user_id, file_name, mime_type, storage_key_original, status)
		VALUES (:id, :user_id, :file_name, :mime_type, :storage_key_original, :status)`
	if _, err := s.db.NamedExecContext(ctx, q, doc); err != nil {
		return fmt.Errorf("store: inserting document: %w", err)
	}
	return nil
}

// GetDocument loads one document by id.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := s.db.GetContext(ctx, &doc, `SELECT * FROM documents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading document %s: %w", id, err)
	}
	return &doc, nil
}

// ClaimForProcessing transitions the document to processing. The update is
// conditional on the current status, so when several workers race for the
// same document exactly one succeeds; the rest get ErrAlreadyClaimed.
func (s *Store) ClaimForProcessing(ctx context.Context, id uuid.UUID, force bool) error {
	const q = `
		UPDATE documents
		SET status = $1, error_message = NULL, updated_at = now()
		WHERE id = $2 AND status = ANY($3)`
	res, err := s.db.ExecContext(ctx, q, StatusProcessing, id, pq.StringArray(claimableFrom(force)))
	if err != nil {
		return fmt.Errorf("store: claiming document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: claiming document %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = s.db.GetContext(ctx, &status, `SELECT status FROM documents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: claiming document %s: %w", id, err)
	}
	return fmt.Errorf("%w: status is %s", ErrAlreadyClaimed, status)
}

// MarkReady records a successful processing run. A non-empty fingerprint
// overwrites the stored one.
func (s *Store) MarkReady(ctx context.Context, id uuid.UUID, pageCount int, acroform bool, fingerprint string) error {
	const q = `
		UPDATE documents
		SET status = $2, page_count = $3, acroform = $4,
		    hash_fingerprint = COALESCE(NULLIF($5, ''), hash_fingerprint),
		    error_message = NULL, updated_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, StatusReady, pageCount, acroform, fingerprint)
	if err != nil {
		return fmt.Errorf("store: marking document %s ready: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkFailed records a failed processing run with its error message.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	const q = `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, StatusFailed, message)
	if err != nil {
		return fmt.Errorf("store: marking document %s failed: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: updating document %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
