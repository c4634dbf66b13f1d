package structure

import (
	"fmt"
	"log/slog"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pdf"
	"github.com/fieldlens-tech/fieldlens/internal/pdftext"
)

const (
	confAcroFormField  = 0.98
	confWidgetFallback = 0.95
	confDrawnRect      = 0.75
	confImageXObject   = 0.70

	// Drawn geometry has to look like a form element before it becomes a
	// candidate. Bounds are fractions of the page size.
	minRectWidthFrac  = 0.02
	minRectHeightFrac = 0.005
	maxRectHeightFrac = 0.15
	minRectAspect     = 0.1
	maxRectAspect     = 50.0

	// labelBandFrac sizes the text search bands left of and above a field.
	labelBandFrac = 0.15

	// minExtent discards normalized boxes thinner than a hairline.
	minExtent = 0.001
)

// Detector finds form fields from the document structure: interactive form
// widgets first, then drawn boxes and image placements from the page
// content streams.
type Detector struct{}

// NewDetector returns a structure detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect scans every page of doc and returns deduplicated candidates.
func (d *Detector) Detect(doc *pdf.Document) ([]field.Detection, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	text, err := pdftext.ExtractFile(doc.Path())
	if err != nil {
		slog.Debug("Text extraction for label inference failed", "path", doc.Path(), "error", err)
		text = nil
	}

	hasForm := doc.HasAcroForm()
	var out []field.Detection
	for page := 0; page < doc.PageCount(); page++ {
		pageW, pageH, err := doc.PageSize(page)
		if err != nil || pageW <= 0 || pageH <= 0 {
			slog.Warn("Skipping page with unusable dimensions", "page", page, "error", err)
			continue
		}
		out = append(out, d.detectPage(doc, text, page, pageW, pageH, hasForm)...)
	}

	out = field.DedupOverlapping(out, field.DedupIoUThreshold)

	valid := out[:0]
	for _, det := range out {
		if err := det.Validate(); err != nil {
			slog.Debug("Dropping invalid structure candidate", "page", det.PageIndex, "error", err)
			continue
		}
		valid = append(valid, det)
	}
	return valid, nil
}

func (d *Detector) detectPage(doc *pdf.Document, text *pdftext.Document, page int, pageW, pageH float64, hasForm bool) []field.Detection {
	var out []field.Detection

	annots, err := doc.PageAnnotations(page)
	if err != nil {
		slog.Debug("Reading annotations failed", "page", page, "error", err)
	}

	widgetN := 0
	for _, annot := range annots {
		det, counted := d.detectWidget(doc, text, annot, page, pageW, pageH, hasForm, widgetN)
		if counted {
			widgetN++
		}
		if det != nil {
			out = append(out, *det)
		}
	}

	content, err := doc.PageContent(page)
	if err != nil {
		slog.Debug("Reading page content failed", "page", page, "error", err)
		return out
	}
	dl := pdf.ParseContent(content)
	out = append(out, d.detectDrawnRects(text, dl, page, pageW, pageH)...)
	out = append(out, d.detectImagePlacements(dl, page, pageW, pageH)...)
	return out
}

// normalizeRect converts a PDF rect in points to a normalized box with a
// bottom-left origin, clamped to the page. Hairline boxes are rejected.
func normalizeRect(x0, y0, x1, y1, pageW, pageH float64) (field.BBox, bool) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	nx0 := clamp01(x0 / pageW)
	nx1 := clamp01(x1 / pageW)
	ny0 := clamp01(y0 / pageH)
	ny1 := clamp01(y1 / pageH)
	w := nx1 - nx0
	h := ny1 - ny0
	if w < minExtent || h < minExtent {
		return field.BBox{}, false
	}
	return field.BBox{X: nx0, Y: ny0, Width: w, Height: h}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
