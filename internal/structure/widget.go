package structure

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pdf"
	"github.com/fieldlens-tech/fieldlens/internal/pdftext"
)

// Multiline text field flag, PDF 32000-1 table 228.
const ffMultiline = 1 << 12

// maxParentDepth bounds Parent chain walks against reference cycles.
const maxParentDepth = 32

// detectWidget classifies a single widget annotation. The bool reports
// whether the widget consumed a fallback label number.
func (d *Detector) detectWidget(doc *pdf.Document, text *pdftext.Document, annot types.Dict, page int, pageW, pageH float64, hasForm bool, widgetN int) (*field.Detection, bool) {
	obj, found := annot.Find("Subtype")
	if !found {
		return nil, false
	}
	subtype, ok := doc.Name(obj)
	if !ok || subtype != "Widget" {
		return nil, false
	}

	x0, y0, x1, y1, ok := annotRect(doc, annot)
	if !ok {
		return nil, false
	}
	bbox, ok := normalizeRect(x0, y0, x1, y1, pageW, pageH)
	if !ok {
		return nil, false
	}

	ft, flags, resolved := widgetFieldType(doc, annot)
	if hasForm && resolved {
		label := widgetFieldName(doc, annot)
		if label == "" {
			label = inferLabel(text, page, x0, y0, x1, y1, pageW, pageH)
		}
		if label == "" {
			label = fmt.Sprintf("Field %d", page+1)
		}
		det := field.Detection{
			PageIndex:  page,
			BBox:       bbox,
			FieldType:  mapFieldType(ft, flags),
			Label:      field.TruncateLabel(label),
			Confidence: confAcroFormField,
			Source:     field.SourceStructure,
		}
		return &det, false
	}

	// Widgets outside the form dictionary still mark fillable spots.
	label := annotTitle(doc, annot)
	if label == "" {
		label = inferLabel(text, page, x0, y0, x1, y1, pageW, pageH)
	}
	if label == "" {
		label = fmt.Sprintf("Widget %d", widgetN+1)
	}
	det := field.Detection{
		PageIndex:  page,
		BBox:       bbox,
		FieldType:  field.ClassifyShape(bbox.Width, bbox.Height),
		Label:      field.TruncateLabel(label),
		Confidence: confWidgetFallback,
		Source:     field.SourceStructure,
	}
	return &det, true
}

// annotRect reads the Rect entry of an annotation in PDF points.
func annotRect(doc *pdf.Document, annot types.Dict) (x0, y0, x1, y1 float64, ok bool) {
	obj, found := annot.Find("Rect")
	if !found {
		return 0, 0, 0, 0, false
	}
	arr, err := doc.DereferenceArray(obj)
	if err != nil || len(arr) != 4 {
		return 0, 0, 0, 0, false
	}
	vals := make([]float64, 4)
	for i, o := range arr {
		v, ok := doc.Number(o)
		if !ok {
			return 0, 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], vals[3], true
}

// widgetFieldType resolves FT and Ff for a widget, walking the Parent
// chain for fields split across a hierarchy.
func widgetFieldType(doc *pdf.Document, annot types.Dict) (string, int, bool) {
	ft := ""
	flags := 0
	flagsSet := false
	cur := annot
	for depth := 0; depth < maxParentDepth && cur != nil; depth++ {
		if ft == "" {
			if obj, found := cur.Find("FT"); found {
				if name, ok := doc.Name(obj); ok {
					ft = name
				}
			}
		}
		if !flagsSet {
			if obj, found := cur.Find("Ff"); found {
				if v, ok := doc.Int(obj); ok {
					flags = v
					flagsSet = true
				}
			}
		}
		if ft != "" && flagsSet {
			break
		}
		parentObj, found := cur.Find("Parent")
		if !found {
			break
		}
		parent, err := doc.DereferenceDict(parentObj)
		if err != nil || parent == nil {
			break
		}
		cur = parent
	}
	return ft, flags, ft != ""
}

// mapFieldType translates an AcroForm field type and flags to a detection
// field type.
func mapFieldType(ft string, flags int) field.FieldType {
	switch ft {
	case "Tx":
		if flags&ffMultiline != 0 {
			return field.TypeMultiline
		}
		return field.TypeText
	case "Btn":
		// Checkboxes, radio groups, and pushbuttons all present a
		// checkable box to the user.
		return field.TypeCheckbox
	case "Sig":
		return field.TypeSignature
	case "Ch":
		return field.TypeText
	default:
		return field.TypeUnknown
	}
}

// annotTitle reads the annotation's own partial field name.
func annotTitle(doc *pdf.Document, annot types.Dict) string {
	obj, found := annot.Find("T")
	if !found {
		return ""
	}
	s, ok := doc.Text(obj)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// widgetFieldName builds the fully qualified field name from the T chain.
func widgetFieldName(doc *pdf.Document, annot types.Dict) string {
	var parts []string
	cur := annot
	for depth := 0; depth < maxParentDepth && cur != nil; depth++ {
		if obj, found := cur.Find("T"); found {
			if s, ok := doc.Text(obj); ok {
				if s = strings.TrimSpace(s); s != "" {
					parts = append(parts, s)
				}
			}
		}
		parentObj, found := cur.Find("Parent")
		if !found {
			break
		}
		parent, err := doc.DereferenceDict(parentObj)
		if err != nil || parent == nil {
			break
		}
		cur = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}
