package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldlens-tech/fieldlens/internal/field"
)

// FieldRegion is one persisted detection on a document page.
type FieldRegion struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DocumentID  uuid.UUID `db:"document_id" json:"document_id"`
	PageIndex   int       `db:"page_index" json:"page_index"`
	X           float64   `db:"x" json:"x"`
	Y           float64   `db:"y" json:"y"`
	Width       float64   `db:"width" json:"width"`
	Height      float64   `db:"height" json:"height"`
	FieldType   string    `db:"field_type" json:"field_type"`
	Label       string    `db:"label" json:"label"`
	Confidence  float64   `db:"confidence" json:"confidence"`
	TemplateKey *string   `db:"template_key" json:"template_key,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RegionFromDetection maps a detection onto a row, capping the label at
// the column width.
func RegionFromDetection(documentID uuid.UUID, det field.Detection) FieldRegion {
	r := FieldRegion{
		ID:         uuid.New(),
		DocumentID: documentID,
		PageIndex:  det.PageIndex,
		X:          det.BBox.X,
		Y:          det.BBox.Y,
		Width:      det.BBox.Width,
		Height:     det.BBox.Height,
		FieldType:  string(det.FieldType),
		Label:      field.TruncateLabel(det.Label),
		Confidence: det.Confidence,
	}
	if det.TemplateKey != "" {
		key := det.TemplateKey
		r.TemplateKey = &key
	}
	return r
}

const insertRegionSQL = `
	INSERT INTO field_regions
		(id, document_id, page_index, x, y, width, height, field_type, label, confidence, template_key)
	VALUES
		(:id, :document_id, :page_index, :x, :y, :width, :height, :field_type, :label, :confidence, :template_key)`

// ReplaceRegions swaps the stored regions of a document for dets inside a
// single transaction, so a failed write never leaves a partial field set.
func (s *Store) ReplaceRegions(ctx context.Context, documentID uuid.UUID, dets []field.Detection) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning region replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM field_regions WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("store: clearing regions of %s: %w", documentID, err)
	}
	for _, det := range dets {
		region := RegionFromDetection(documentID, det)
		if _, err := tx.NamedExecContext(ctx, insertRegionSQL, region); err != nil {
			return fmt.Errorf("store: inserting region for %s: %w", documentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing regions of %s: %w", documentID, err)
	}
	return nil
}

// ListRegions returns a document's regions in reading order: page by page,
// top of the page first.
func (s *Store) ListRegions(ctx context.Context, documentID uuid.UUID) ([]FieldRegion, error) {
	const q = `
		SELECT * FROM field_regions
		WHERE document_id = $1
		ORDER BY page_index ASC, (y + height) DESC, x ASC`
	var regions []FieldRegion
	if err := s.db.SelectContext(ctx, &regions, q, documentID); err != nil {
		return nil, fmt.Errorf("store: listing regions of %s: %w", documentID, err)
	}
	return regions, nil
}

// CountRegions returns the number of stored regions for a document.
func (s *Store) CountRegions(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM field_regions WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("store: counting regions of %s: %w", documentID, err)
	}
	return n, nil
}

// DeleteRegions removes all stored regions for a document.
func (s *Store) DeleteRegions(ctx context.Context, documentID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM field_regions WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("store: deleting regions of %s: %w", documentID, err)
	}
	return nil
}
