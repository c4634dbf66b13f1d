package structure

import (
	"fmt"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pdf"
	"github.com/fieldlens-tech/fieldlens/internal/pdftext"
)

// detectDrawnRects turns painted rectangles that look like input boxes into
// candidates.
func (d *Detector) detectDrawnRects(text *pdftext.Document, dl pdf.DisplayList, page int, pageW, pageH float64) []field.Detection {
	var out []field.Detection
	n := 0
	for _, r := range dl.Rects {
		if !plausibleFieldRect(r.W, r.H, pageW, pageH) {
			continue
		}
		bbox, ok := normalizeRect(r.X, r.Y, r.X+r.W, r.Y+r.H, pageW, pageH)
		if !ok {
			continue
		}
		n++
		label := inferLabel(text, page, r.X, r.Y, r.X+r.W, r.Y+r.H, pageW, pageH)
		if label == "" {
			label = fmt.Sprintf("Field %d", n)
		}
		out = append(out, field.Detection{
			PageIndex:  page,
			BBox:       bbox,
			FieldType:  field.ClassifyShape(bbox.Width, bbox.Height),
			Label:      field.TruncateLabel(label),
			Confidence: confDrawnRect,
			Source:     field.SourceStructure,
		})
	}
	return out
}

// detectImagePlacements reports image XObject placements sized like form
// elements, such as stamped signature boxes.
func (d *Detector) detectImagePlacements(dl pdf.DisplayList, page int, pageW, pageH float64) []field.Detection {
	var out []field.Detection
	n := 0
	for _, p := range dl.Images {
		if !plausibleFieldRect(p.W, p.H, pageW, pageH) {
			continue
		}
		bbox, ok := normalizeRect(p.X, p.Y, p.X+p.W, p.Y+p.H, pageW, pageH)
		if !ok {
			continue
		}
		n++
		out = append(out, field.Detection{
			PageIndex:  page,
			BBox:       bbox,
			FieldType:  field.ClassifyShape(bbox.Width, bbox.Height),
			Label:      fmt.Sprintf("XObject Field %d", n),
			Confidence: confImageXObject,
			Source:     field.SourceStructure,
		})
	}
	return out
}

// plausibleFieldRect filters drawn geometry by page-relative size and
// aspect ratio.
func plausibleFieldRect(w, h, pageW, pageH float64) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	if w < minRectWidthFrac*pageW {
		return false
	}
	if h < minRectHeightFrac*pageH || h > maxRectHeightFrac*pageH {
		return false
	}
	aspect := w / h
	return aspect >= minRectAspect && aspect <= maxRectAspect
}

// inferLabel looks for printed text immediately left of, then above, a
// field rect given in PDF points.
func inferLabel(text *pdftext.Document, page int, x0, y0, x1, y1, pageW, pageH float64) string {
	if text == nil {
		return ""
	}
	left := text.TextInRegion(page, x0-labelBandFrac*pageW, y0, x0, y1)
	if label := field.CleanLabel(left); label != "" {
		return label
	}
	above := text.TextInRegion(page, x0, y1, x1, y1+labelBandFrac*pageH)
	return field.CleanLabel(above)
}
