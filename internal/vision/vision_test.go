package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldlens-tech/fieldlens/internal/field"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"  {\"a\":1} ", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{}\n```", "{}"},
		{"```json{}```", "{}"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePageResponse(t *testing.T) {
	raw := "```json\n" + `{
  "page_index": 2,
  "fields": [
    {"id": "field_001", "type": "text", "label": "Full Name", "bbox": [100, 120, 600, 160]},
    {"id": "field_002", "type": "checkbox", "label": "Single", "bbox": [120, 300, 150, 330]}
  ]
}` + "\n```"

	page, err := parsePageResponse(raw)
	if err != nil {
		t.Fatalf("parsePageResponse: %v", err)
	}
	if page.PageIndex != 2 {
		t.Errorf("page_index = %d, want 2", page.PageIndex)
	}
	if len(page.Fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(page.Fields))
	}
	f := page.Fields[0]
	if f.ID != "field_001" || f.Type != "text" || f.Label != "Full Name" {
		t.Errorf("field = %+v", f)
	}
	if len(f.BBox) != 4 || f.BBox[2] != 600 {
		t.Errorf("bbox = %v", f.BBox)
	}

	if _, err := parsePageResponse("the page has no fields"); err == nil {
		t.Error("expected error for non-JSON response")
	}
}

func TestConvertField(t *testing.T) {
	d := NewDetectorWithClient(nil, DefaultConfig())

	tests := []struct {
		name     string
		in       rawField
		wantOK   bool
		wantType field.FieldType
		wantBox  field.BBox
	}{
		{
			name:     "text field",
			in:       rawField{ID: "field_001", Type: "text", Label: "Full Name", BBox: []float64{100, 120, 600, 160}},
			wantOK:   true,
			wantType: field.TypeText,
			wantBox:  field.BBox{X: 0.1, Y: 0.12, Width: 0.5, Height: 0.04},
		},
		{
			name:     "textarea maps to multiline",
			in:       rawField{Type: "textarea", Label: "Remarks", BBox: []float64{100, 100, 900, 300}},
			wantOK:   true,
			wantType: field.TypeMultiline,
			wantBox:  field.BBox{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.2},
		},
		{
			name:     "unrecognized type",
			in:       rawField{Type: "dropdown", Label: "State", BBox: []float64{100, 100, 300, 140}},
			wantOK:   true,
			wantType: field.TypeUnknown,
			wantBox:  field.BBox{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.04},
		},
		{
			name:     "out of range coordinates clamp to the page",
			in:       rawField{Type: "text", Label: "Wide", BBox: []float64{-50, 900, 2000, 1200}},
			wantOK:   true,
			wantType: field.TypeText,
			wantBox:  field.BBox{X: 0, Y: 0.9, Width: 1, Height: 0.1},
		},
		{
			name:   "malformed bbox",
			in:     rawField{Type: "text", Label: "Bad", BBox: []float64{100, 200, 300}},
			wantOK: false,
		},
		{
			name:   "zero height",
			in:     rawField{Type: "text", Label: "Flat", BBox: []float64{100, 120, 600, 120}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det, ok := d.convertField(tt.in, 3)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if det.PageIndex != 3 {
				t.Errorf("page = %d, want 3", det.PageIndex)
			}
			if det.Source != field.SourceVision {
				t.Errorf("source = %q, want %q", det.Source, field.SourceVision)
			}
			if det.FieldType != tt.wantType {
				t.Errorf("type = %q, want %q", det.FieldType, tt.wantType)
			}
			if det.Confidence != DefaultConfidence {
				t.Errorf("confidence = %v, want %v", det.Confidence, DefaultConfidence)
			}
			if det.TemplateKey != tt.in.ID {
				t.Errorf("template key = %q, want %q", det.TemplateKey, tt.in.ID)
			}
			assertBBoxNear(t, det.BBox, tt.wantBox)
		})
	}
}

func TestConvertFieldLabels(t *testing.T) {
	d := NewDetectorWithClient(nil, DefaultConfig())

	det, ok := d.convertField(rawField{Type: "text", BBox: []float64{100, 100, 300, 140}}, 0)
	if !ok {
		t.Fatal("expected detection")
	}
	if det.Label != field.DefaultLabel {
		t.Errorf("label = %q, want %q", det.Label, field.DefaultLabel)
	}

	long := strings.Repeat("a", 300)
	det, ok = d.convertField(rawField{Type: "text", Label: long, BBox: []float64{100, 100, 300, 140}}, 0)
	if !ok {
		t.Fatal("expected detection")
	}
	if len(det.Label) != field.MaxLabelLength {
		t.Errorf("label length = %d, want %d", len(det.Label), field.MaxLabelLength)
	}
}

func TestConvertFieldCustomConfidence(t *testing.T) {
	d := NewDetectorWithClient(nil, Config{Confidence: 0.7})
	det, ok := d.convertField(rawField{Type: "text", Label: "Name", BBox: []float64{100, 100, 300, 140}}, 0)
	if !ok {
		t.Fatal("expected detection")
	}
	if det.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", det.Confidence)
	}
}

func TestNewDetectorConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"no provider", Config{}, false},
		{"provider without key", Config{Provider: ProviderOpenAI}, false},
		{"openai", Config{Provider: ProviderOpenAI, APIKey: "k"}, true},
		{"gemini", Config{Provider: ProviderGemini, APIKey: "k"}, true},
		{"unknown provider", Config{Provider: "azure", APIKey: "k"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewDetector(tt.cfg).Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectFieldsUnconfigured(t *testing.T) {
	dets, err := NewDetector(Config{}).DetectFields(context.Background(), "missing.pdf", "")
	if err != nil {
		t.Fatalf("DetectFields: %v", err)
	}
	if dets != nil {
		t.Fatalf("got %+v, want nil", dets)
	}
}

func TestOpenAIClientDetectPage(t *testing.T) {
	png := []byte("fake-png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != DefaultOpenAIModel || req.MaxTokens != maxResponseTokens || req.Temperature != requestTemperature {
			t.Errorf("request params = %q/%d/%v", req.Model, req.MaxTokens, req.Temperature)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Errorf("messages = %+v", req.Messages)
			return
		}
		if req.Messages[0].Content[0].Text == "" {
			t.Error("prompt part is empty")
		}
		url := req.Messages[0].Content[1].ImageURL.URL
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
		if err != nil || string(data) != string(png) {
			t.Errorf("image payload mismatch: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"page_index\":0,\"fields\":[]}"}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", "")
	c.BaseURL = srv.URL
	got, err := c.DetectPage(context.Background(), png, 0)
	if err != nil {
		t.Fatalf("DetectPage: %v", err)
	}
	if want := `{"page_index":0,"fields":[]}`; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", "")
	c.BaseURL = srv.URL
	_, err := c.DetectPage(context.Background(), []byte("png"), 0)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("err = %v, want status 500 error", err)
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", "")
	c.BaseURL = srv.URL
	if _, err := c.DetectPage(context.Background(), []byte("png"), 0); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestGeminiClientDetectPage(t *testing.T) {
	png := []byte("fake-png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if want := "/models/" + DefaultGeminiModel + ":generateContent"; r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
			t.Errorf("api key header = %q", got)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("contents = %+v", req.Contents)
			return
		}
		if req.Contents[0].Parts[0].Text == "" {
			t.Error("prompt part is empty")
		}
		blob := req.Contents[0].Parts[1].InlineData
		if blob == nil || blob.MIMEType != "image/png" {
			t.Errorf("inline data = %+v", blob)
			return
		}
		data, err := base64.StdEncoding.DecodeString(blob.Data)
		if err != nil || string(data) != string(png) {
			t.Errorf("image payload mismatch: %v", err)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"part1 "},{"text":"part2"}]}}]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", "")
	c.BaseURL = srv.URL
	got, err := c.DetectPage(context.Background(), png, 1)
	if err != nil {
		t.Fatalf("DetectPage: %v", err)
	}
	if got != "part1 part2" {
		t.Errorf("content = %q, want %q", got, "part1 part2")
	}
}

func TestGeminiClientNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", "")
	c.BaseURL = srv.URL
	if _, err := c.DetectPage(context.Background(), []byte("png"), 0); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func assertBBoxNear(t *testing.T, got, want field.BBox) {
	t.Helper()
	const tol = 1e-9
	if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol ||
		math.Abs(got.Width-want.Width) > tol || math.Abs(got.Height-want.Height) > tol {
		t.Errorf("bbox = %+v, want %+v", got, want)
	}
}
