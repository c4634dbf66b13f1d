package textfilter

import (
	"log/slog"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pdf"
	"github.com/fieldlens-tech/fieldlens/internal/pdftext"
)

// DefaultOverlapThreshold is the fraction of a field's area that may be
// covered by printed text before the field is rejected.
const DefaultOverlapThreshold = 0.30

const minExtent = 0.001

// Config holds the filter threshold.
type Config struct {
	OverlapThreshold float64
}

// DefaultConfig returns the default filter threshold.
func DefaultConfig() Config {
	return Config{OverlapThreshold: DefaultOverlapThreshold}
}

// Filter rejects detections whose boxes sit mostly on printed text, so
// annotations land only on genuinely fillable space.
type Filter struct {
	threshold float64
}

// NewFilter returns a Filter with the threshold clamped to [0, 1]. A
// zero threshold rejects any text contact; a threshold of 1 disables
// filtering.
func NewFilter(cfg Config) *Filter {
	t := cfg.OverlapThreshold
	if t < 0 {
		slog.Warn("Clamping overlap threshold", "threshold", t, "clamped", 0.0)
		t = 0
	}
	if t > 1 {
		slog.Warn("Clamping overlap threshold", "threshold", t, "clamped", 1.0)
		t = 1
	}
	return &Filter{threshold: t}
}

// FilterFields removes detections overlapping the PDF's printed text.
// When text extraction fails the input is returned unfiltered rather
// than misclassifying fields.
func (f *Filter) FilterFields(dets []field.Detection, pdfPath string) []field.Detection {
	if len(dets) == 0 {
		return dets
	}
	regions, err := ExtractTextRegions(pdfPath)
	if err != nil {
		slog.Warn("Text extraction failed, returning fields unfiltered", "path", pdfPath, "error", err)
		return dets
	}
	return f.FilterWithRegions(dets, regions)
}

// FilterWithRegions removes detections overlapping the given per-page
// text regions.
func (f *Filter) FilterWithRegions(dets []field.Detection, regions map[int][]field.BBox) []field.Detection {
	kept := make([]field.Detection, 0, len(dets))
	for _, det := range dets {
		ratio := OverlapRatio(det.BBox, regions[det.PageIndex])
		if !f.keeps(ratio) {
			slog.Debug("Rejected field over printed text",
				"label", det.Label, "page", det.PageIndex, "overlap", ratio)
			continue
		}
		kept = append(kept, det)
	}
	slog.Debug("Text overlap filter applied", "in", len(dets), "kept", len(kept))
	return kept
}

// keeps applies the threshold. The clamped endpoints get their stated
// meanings: zero rejects any contact, one filters nothing.
func (f *Filter) keeps(ratio float64) bool {
	switch {
	case f.threshold >= 1:
		return true
	case f.threshold <= 0:
		return ratio == 0
	default:
		return ratio < f.threshold
	}
}

// OverlapRatio returns the fraction of the box covered by the text
// regions, capped at 1. Regions may overlap each other, hence the cap.
func OverlapRatio(b field.BBox, regions []field.BBox) float64 {
	area := b.Area()
	if area <= 0 || len(regions) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range regions {
		total += b.IntersectionArea(r)
	}
	ratio := total / area
	if ratio > 1 {
		return 1
	}
	return ratio
}

// ExtractTextRegions reads the PDF's positioned text and returns each
// page's line boxes normalized to the unit square, bottom-left origin.
func ExtractTextRegions(pdfPath string) (map[int][]field.BBox, error) {
	doc, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	text, err := pdftext.ExtractFile(pdfPath)
	if err != nil {
		return nil, err
	}

	regions := make(map[int][]field.BBox)
	for i := range doc.PageCount() {
		pageW, pageH, err := doc.PageSize(i)
		if err != nil || pageW <= 0 || pageH <= 0 {
			continue
		}
		for _, line := range text.PageLines(i) {
			if bbox, ok := normalizeLine(line, pageW, pageH); ok {
				regions[i] = append(regions[i], bbox)
			}
		}
	}
	return regions, nil
}

// normalizeLine converts a text line from page points to a normalized
// box, dropping slivers too small to matter.
func normalizeLine(l pdftext.Line, pageW, pageH float64) (field.BBox, bool) {
	x := clamp01(l.MinX / pageW)
	y := clamp01(l.MinY / pageH)
	w := clampTo(1-x, l.WidthPt()/pageW)
	h := clampTo(1-y, l.HeightPt()/pageH)
	if w < minExtent || h < minExtent {
		return field.BBox{}, false
	}
	return field.BBox{X: x, Y: y, Width: w, Height: h}, true
}

func clamp01(v float64) float64 {
	return clampTo(1, v)
}

func clampTo(limit, v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
