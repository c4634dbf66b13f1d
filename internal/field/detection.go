package field

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxLabelLength is the widest label persisted or exchanged with the
// queue; producers truncate longer labels.
const MaxLabelLength = 255

// DefaultLabel substitutes for labels that end up empty after cleaning
// or truncation.
const DefaultLabel = "Unnamed Field"

// ErrInvalidDetection reports a detection that violates the model
// invariants.
var ErrInvalidDetection = errors.New("invalid detection")

// Detection is a single detected form field on a page.
type Detection struct {
	PageIndex   int             `json:"page_index"`
	BBox        BBox            `json:"bbox"`
	FieldType   FieldType       `json:"field_type"`
	Label       string          `json:"label"`
	Confidence  float64         `json:"confidence"`
	Source      DetectionSource `json:"source"`
	TemplateKey string          `json:"template_key,omitempty"`
}

// Validate checks the detection invariants: non-negative page index, a
// valid bounding box, a non-empty label within the length cap, a
// confidence in [0,1], and a recognized source.
func (d Detection) Validate() error {
	if d.PageIndex < 0 {
		return fmt.Errorf("%w: page_index %d is negative", ErrInvalidDetection, d.PageIndex)
	}
	if err := d.BBox.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDetection, err)
	}
	if d.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidDetection)
	}
	if len([]rune(d.Label)) > MaxLabelLength {
		return fmt.Errorf("%w: label longer than %d characters", ErrInvalidDetection, MaxLabelLength)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidDetection, d.Confidence)
	}
	if _, ok := ParseDetectionSource(string(d.Source)); !ok {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidDetection, d.Source)
	}
	return nil
}

// ToMap flattens the detection into the string-keyed shape exchanged
// with the queue worker. DetectionFromMap restores it without loss.
func (d Detection) ToMap() map[string]any {
	m := map[string]any{
		"page_index": d.PageIndex,
		"bbox": map[string]any{
			"x":      d.BBox.X,
			"y":      d.BBox.Y,
			"width":  d.BBox.Width,
			"height": d.BBox.Height,
		},
		"field_type": string(d.FieldType),
		"label":      d.Label,
		"confidence": d.Confidence,
		"source":     string(d.Source),
	}
	if d.TemplateKey != "" {
		m["template_key"] = d.TemplateKey
	}
	return m
}

// DetectionFromMap rebuilds a detection from its map form, accepting
// the numeric representations JSON decoding produces. The result is
// validated before returning.
func DetectionFromMap(m map[string]any) (Detection, error) {
	page, err := mapInt(m, "page_index")
	if err != nil {
		return Detection{}, err
	}
	rawBox, ok := m["bbox"].(map[string]any)
	if !ok {
		return Detection{}, fmt.Errorf("%w: missing or malformed bbox", ErrInvalidDetection)
	}
	var coords [4]float64
	for i, key := range [...]string{"x", "y", "width", "height"} {
		coords[i], err = mapFloat(rawBox, key)
		if err != nil {
			return Detection{}, fmt.Errorf("bbox: %w", err)
		}
	}
	bbox, err := NewBBox(coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		return Detection{}, fmt.Errorf("%w: %w", ErrInvalidDetection, err)
	}
	fieldType, err := mapString(m, "field_type")
	if err != nil {
		return Detection{}, err
	}
	label, err := mapString(m, "label")
	if err != nil {
		return Detection{}, err
	}
	confidence, err := mapFloat(m, "confidence")
	if err != nil {
		return Detection{}, err
	}
	source, err := mapString(m, "source")
	if err != nil {
		return Detection{}, err
	}
	templateKey := ""
	if v, ok := m["template_key"]; ok && v != nil {
		templateKey, ok = v.(string)
		if !ok {
			return Detection{}, fmt.Errorf("%w: template_key is not a string", ErrInvalidDetection)
		}
	}
	d := Detection{
		PageIndex:   page,
		BBox:        bbox,
		FieldType:   ParseFieldType(fieldType),
		Label:       label,
		Confidence:  confidence,
		Source:      DetectionSource(source),
		TemplateKey: templateKey,
	}
	if err := d.Validate(); err != nil {
		return Detection{}, err
	}
	return d, nil
}

func mapFloat(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidDetection, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDetection, key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidDetection, key)
	}
}

func mapInt(m map[string]any, key string) (int, error) {
	f, err := mapFloat(m, key)
	if err != nil {
		return 0, err
	}
	n := int(f)
	if float64(n) != f {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidDetection, key)
	}
	return n, nil
}

func mapString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidDetection, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a string", ErrInvalidDetection, key)
	}
	return s, nil
}
