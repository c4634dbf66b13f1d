package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pdf"
	"github.com/fieldlens-tech/fieldlens/internal/render"
)

// Supported vision providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	// DefaultDPI is the render resolution for pages sent to the provider.
	DefaultDPI = 150.0

	// DefaultConfidence is assigned to every vision detection; providers
	// return no usable per-field score.
	DefaultConfidence = 0.85

	// visionGrid is the coordinate range the prompt asks the model to
	// use, bottom-left origin.
	visionGrid = 1000.0

	minExtent = 0.001

	clientTimeout = 120 * time.Second
)

// visionPrompt instructs the model to emit strict JSON detections.
const visionPrompt = `You are a document form field detection engine. Your job is to find every place a human is supposed to type, tick, or sign on this form page.

You MUST:
- Look for empty boxes, underlines, table cells, or whitespace aligned with labels.
- Treat "fill-in-the-blank" lines, rectangular boxes, and empty cells as input fields.
- Include checkboxes and signature areas.

For each field you detect, return JSON with:
- id: a short unique string (like "field_001").
- type: one of "text" | "textarea" | "checkbox" | "signature" | "date" | "number" | "unknown".
- label: the human-readable label, e.g. "Full Name", "NRIC No.", "Marital Status".
- bbox: bounding box as [x_min, y_min, x_max, y_max] in a 0-1000 relative grid, where (0,0) is bottom-left of the page and (1000,1000) is top-right.

Important details:
- Ignore decorative text and headings that are not directly associated with an input field.
- If multiple small boxes form one logical field (e.g., individual NRIC digits), treat them as one field that covers the whole group.
- For checkboxes with labels, return the bbox of the checkbox itself and include the label text.

Output format (JSON only, no explanations):
{
  "page_index": <zero_based_page_index>,
  "fields": [
    {
      "id": "field_001",
      "type": "text",
      "label": "Name (as per NRIC)",
      "bbox": [100, 120, 600, 160]
    },
    {
      "id": "field_002",
      "type": "checkbox",
      "label": "Single",
      "bbox": [120, 300, 150, 330]
    }
  ]
}`

// Client sends one rendered page image to a vision provider and returns
// the raw model output.
type Client interface {
	DetectPage(ctx context.Context, png []byte, pageIndex int) (string, error)
}

// Config selects and parameterizes the vision provider. An empty
// Provider or APIKey leaves the detector disabled.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	DPI        float64
	Confidence float64
}

// DefaultConfig returns the vision defaults with no provider selected.
func DefaultConfig() Config {
	return Config{DPI: DefaultDPI, Confidence: DefaultConfidence}
}

// Detector finds form fields by showing rendered pages to a vision
// model.
type Detector struct {
	client     Client
	dpi        float64
	confidence float64
}

// NewDetector builds a detector for the configured provider. With no
// provider or API key the detector stays disabled and detects nothing.
func NewDetector(cfg Config) *Detector {
	var client Client
	switch {
	case cfg.APIKey == "":
	case cfg.Provider == ProviderOpenAI:
		client = NewOpenAIClient(cfg.APIKey, cfg.Model)
	case cfg.Provider == ProviderGemini:
		client = NewGeminiClient(cfg.APIKey, cfg.Model)
	}
	if client == nil && cfg.Provider != "" {
		slog.Debug("Vision detector disabled", "provider", cfg.Provider)
	}
	return NewDetectorWithClient(client, cfg)
}

// NewDetectorWithClient builds a detector around an existing provider
// client.
func NewDetectorWithClient(client Client, cfg Config) *Detector {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = DefaultConfidence
	}
	return &Detector{client: client, dpi: cfg.DPI, confidence: cfg.Confidence}
}

// Configured reports whether a provider client is available.
func (d *Detector) Configured() bool {
	return d != nil && d.client != nil
}

// DetectFields renders each page of the PDF and asks the provider for
// field detections. Pages that fail to render, transmit, or parse are
// skipped; detections from the remaining pages are still returned.
func (d *Detector) DetectFields(ctx context.Context, pdfPath, documentID string) ([]field.Detection, error) {
	if !d.Configured() {
		return nil, nil
	}

	doc, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("vision: open pdf: %w", err)
	}
	defer doc.Close()

	renderer := render.NewRenderer(render.Config{DPI: d.dpi})

	var dets []field.Detection
	for i := range doc.PageCount() {
		raster, err := renderer.RenderPage(doc, i)
		if err != nil {
			slog.Warn("Skipping page after render failure", "page", i, "document", documentID, "error", err)
			continue
		}
		png, err := render.EncodePNG(raster.Image)
		if err != nil {
			slog.Warn("Skipping page after PNG encode failure", "page", i, "document", documentID, "error", err)
			continue
		}
		raw, err := d.client.DetectPage(ctx, png, i)
		if err != nil {
			slog.Warn("Vision provider call failed", "page", i, "document", documentID, "error", err)
			continue
		}
		page, err := parsePageResponse(raw)
		if err != nil {
			slog.Warn("Discarding unparseable vision response", "page", i, "document", documentID, "error", err)
			continue
		}
		kept := 0
		for _, rf := range page.Fields {
			if det, ok := d.convertField(rf, i); ok {
				dets = append(dets, det)
				kept++
			}
		}
		slog.Debug("Vision page processed", "page", i, "fields", len(page.Fields), "kept", kept)
	}
	return dets, nil
}

type pageResponse struct {
	PageIndex int        `json:"page_index"`
	Fields    []rawField `json:"fields"`
}

type rawField struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	Label string    `json:"label"`
	BBox  []float64 `json:"bbox"`
}

func parsePageResponse(raw string) (pageResponse, error) {
	var page pageResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &page); err != nil {
		return pageResponse{}, fmt.Errorf("vision: parse response: %w", err)
	}
	return page, nil
}

// stripFences removes a markdown code fence around the model output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// convertField turns one raw model field into a detection. The model's
// bbox is [x_min, y_min, x_max, y_max] on the 0-1000 bottom-left grid.
func (d *Detector) convertField(rf rawField, pageIndex int) (field.Detection, bool) {
	if len(rf.BBox) != 4 {
		slog.Warn("Skipping vision field with malformed bbox", "page", pageIndex, "bbox", rf.BBox)
		return field.Detection{}, false
	}

	x := clamp01(rf.BBox[0] / visionGrid)
	y := clamp01(rf.BBox[1] / visionGrid)
	w := clampTo(1-x, (rf.BBox[2]-rf.BBox[0])/visionGrid)
	h := clampTo(1-y, (rf.BBox[3]-rf.BBox[1])/visionGrid)
	if w < minExtent || h < minExtent {
		return field.Detection{}, false
	}

	label := rf.Label
	if label == "" {
		label = field.DefaultLabel
	}

	return field.Detection{
		PageIndex:   pageIndex,
		BBox:        field.BBox{X: x, Y: y, Width: w, Height: h},
		FieldType:   mapVisionType(rf.Type),
		Label:       field.TruncateLabel(label),
		Confidence:  d.confidence,
		Source:      field.SourceVision,
		TemplateKey: rf.ID,
	}, true
}

func mapVisionType(s string) field.FieldType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "textarea" {
		return field.TypeMultiline
	}
	return field.ParseFieldType(s)
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
