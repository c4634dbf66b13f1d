package ensemble

import (
	"testing"

	"github.com/fieldlens-tech/fieldlens/internal/field"
)

func det(page int, x, y, w, h float64, src field.DetectionSource, ftype field.FieldType, label string, conf float64) field.Detection {
	return field.Detection{
		PageIndex:  page,
		BBox:       field.BBox{X: x, Y: y, Width: w, Height: h},
		FieldType:  ftype,
		Label:      label,
		Confidence: conf,
		Source:     src,
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	if got := NewMerger(DefaultConfig()).Merge(nil, nil, nil); len(got) != 0 {
		t.Fatalf("got %d detections, want 0", len(got))
	}
}

func TestMergePriorityOverride(t *testing.T) {
	structure := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceStructure, field.TypeText, "Widget 1", 0.95)}
	geometric := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceGeometric, field.TypeText, "Text Field 1", 0.9)}
	vision := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceVision, field.TypeText, "Full Name", 0.85)}

	got := NewMerger(DefaultConfig()).Merge(structure, geometric, vision)
	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1: %+v", len(got), got)
	}
	d := got[0]
	if d.Source != field.SourceStructure {
		t.Errorf("source = %q, want %q", d.Source, field.SourceStructure)
	}
	if d.Label != "Full Name" {
		t.Errorf("label = %q, want %q", d.Label, "Full Name")
	}
	if d.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", d.Confidence)
	}
}

func TestMergeInheritsConfidence(t *testing.T) {
	structure := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceStructure, field.TypeText, "Tax ID", 0.7)}
	vision := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceVision, field.TypeText, "TIN", 0.9)}

	got := NewMerger(DefaultConfig()).Merge(structure, nil, vision)
	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1", len(got))
	}
	if got[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got[0].Confidence)
	}
	if got[0].Label != "Tax ID" {
		t.Errorf("label = %q, want %q", got[0].Label, "Tax ID")
	}
}

func TestMergeCheckboxOverride(t *testing.T) {
	structure := []field.Detection{
		det(0, 0.1, 0.1, 0.02, 0.02, field.SourceStructure, field.TypeText, "Married", 0.9),
		det(1, 0.5, 0.5, 0.3, 0.05, field.SourceStructure, field.TypeText, "Address", 0.9),
	}
	vision := []field.Detection{
		det(0, 0.1, 0.1, 0.02, 0.02, field.SourceVision, field.TypeCheckbox, "Married", 0.85),
		det(1, 0.5, 0.5, 0.3, 0.05, field.SourceVision, field.TypeCheckbox, "Address", 0.85),
	}

	got := NewMerger(DefaultConfig()).Merge(structure, nil, vision)
	if len(got) != 2 {
		t.Fatalf("got %d detections, want 2: %+v", len(got), got)
	}
	if got[0].FieldType != field.TypeCheckbox {
		t.Errorf("small box type = %q, want %q", got[0].FieldType, field.TypeCheckbox)
	}
	// A wide box cannot become a checkbox regardless of the claim.
	if got[1].FieldType != field.TypeText {
		t.Errorf("wide box type = %q, want %q", got[1].FieldType, field.TypeText)
	}
}

func TestMergeSignatureOverride(t *testing.T) {
	structure := []field.Detection{det(0, 0.1, 0.7, 0.4, 0.03, field.SourceStructure, field.TypeText, "Applicant Signature", 0.9)}
	geometric := []field.Detection{det(0, 0.1, 0.7, 0.4, 0.03, field.SourceGeometric, field.TypeSignature, "Signature 1", 0.85)}

	got := NewMerger(DefaultConfig()).Merge(structure, geometric, nil)
	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1", len(got))
	}
	if got[0].FieldType != field.TypeSignature {
		t.Errorf("type = %q, want %q", got[0].FieldType, field.TypeSignature)
	}
	if got[0].Source != field.SourceStructure {
		t.Errorf("source = %q, want %q", got[0].Source, field.SourceStructure)
	}
}

func TestMergeVisionSignatureDoesNotOverride(t *testing.T) {
	structure := []field.Detection{det(0, 0.1, 0.7, 0.4, 0.03, field.SourceStructure, field.TypeText, "Name", 0.9)}
	vision := []field.Detection{det(0, 0.1, 0.7, 0.4, 0.03, field.SourceVision, field.TypeSignature, "Sign Here", 0.85)}

	got := NewMerger(DefaultConfig()).Merge(structure, nil, vision)
	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1", len(got))
	}
	if got[0].FieldType != field.TypeText {
		t.Errorf("type = %q, want %q", got[0].FieldType, field.TypeText)
	}
}

func TestMergeSortsByPageAndPosition(t *testing.T) {
	structure := []field.Detection{
		det(1, 0, 0.94, 0.2, 0.05, field.SourceStructure, field.TypeText, "D", 0.9),
		det(0, 0.1, 0.1, 0.2, 0.05, field.SourceStructure, field.TypeText, "A", 0.9),
		det(0, 0.5, 0.8, 0.2, 0.05, field.SourceStructure, field.TypeText, "C", 0.9),
		det(0, 0.1, 0.8, 0.2, 0.05, field.SourceStructure, field.TypeText, "B", 0.9),
	}

	got := NewMerger(DefaultConfig()).Merge(structure, nil, nil)
	want := []string{"B", "C", "A", "D"}
	if len(got) != len(want) {
		t.Fatalf("got %d detections, want %d", len(got), len(want))
	}
	for i, label := range want {
		if got[i].Label != label {
			t.Errorf("position %d = %q, want %q", i, got[i].Label, label)
		}
	}
}

func TestMergeSamePageOnly(t *testing.T) {
	structure := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceStructure, field.TypeText, "Name", 0.9)}
	vision := []field.Detection{det(1, 0.1, 0.1, 0.3, 0.05, field.SourceVision, field.TypeText, "Name", 0.85)}

	got := NewMerger(DefaultConfig()).Merge(structure, nil, vision)
	if len(got) != 2 {
		t.Fatalf("got %d detections, want 2: %+v", len(got), got)
	}
}

func TestMergeThreshold(t *testing.T) {
	// The pair overlaps with IoU 1/3.
	structure := []field.Detection{det(0, 0, 0, 0.4, 0.1, field.SourceStructure, field.TypeText, "Left", 0.9)}
	vision := []field.Detection{det(0, 0.2, 0, 0.4, 0.1, field.SourceVision, field.TypeText, "Right", 0.85)}

	if got := NewMerger(DefaultConfig()).Merge(structure, nil, vision); len(got) != 1 {
		t.Errorf("default threshold: got %d detections, want 1", len(got))
	}
	if got := NewMerger(Config{IoUThreshold: 0.5}).Merge(structure, nil, vision); len(got) != 2 {
		t.Errorf("raised threshold: got %d detections, want 2", len(got))
	}
}

func TestMergeCustomPriorities(t *testing.T) {
	structure := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceStructure, field.TypeText, "Widget 1", 0.95)}
	vision := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceVision, field.TypeText, "Full Name", 0.85)}

	cfg := Config{Priorities: map[field.DetectionSource]int{
		field.SourceVision:    1,
		field.SourceStructure: 2,
		field.SourceGeometric: 3,
	}}
	got := NewMerger(cfg).Merge(structure, nil, vision)
	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1", len(got))
	}
	if got[0].Source != field.SourceVision {
		t.Errorf("source = %q, want vision to win under a custom ranking", got[0].Source)
	}
}

func TestMergeWithAcroForm(t *testing.T) {
	acro := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceAcroForm, field.TypeText, "Employee Name", 0.99)}
	others := []field.Detection{det(0, 0.1, 0.1, 0.3, 0.05, field.SourceStructure, field.TypeText, "Name", 0.98)}

	m := NewMerger(DefaultConfig())
	got := m.MergeWithAcroForm(acro, others)
	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1: %+v", len(got), got)
	}
	if got[0].Source != field.SourceAcroForm {
		t.Errorf("source = %q, want %q", got[0].Source, field.SourceAcroForm)
	}
	if got[0].Label != "Employee Name" {
		t.Errorf("label = %q, want %q", got[0].Label, "Employee Name")
	}

	if got := m.MergeWithAcroForm(nil, others); len(got) != 1 || got[0].Source != field.SourceStructure {
		t.Errorf("empty acroform: got %+v, want the other detections", got)
	}
	if got := m.MergeWithAcroForm(acro, nil); len(got) != 1 || got[0].Source != field.SourceAcroForm {
		t.Errorf("empty others: got %+v, want the acroform detections", got)
	}
}

func TestResolveTypeMatrix(t *testing.T) {
	smallBox := field.BBox{X: 0.1, Y: 0.1, Width: 0.02, Height: 0.02}
	wideBox := field.BBox{X: 0.1, Y: 0.1, Width: 0.4, Height: 0.03}

	tests := []struct {
		name      string
		primary   field.Detection
		secondary field.Detection
		want      field.FieldType
	}{
		{
			name:      "same type",
			primary:   field.Detection{FieldType: field.TypeText, BBox: wideBox, Source: field.SourceStructure},
			secondary: field.Detection{FieldType: field.TypeText, Source: field.SourceVision},
			want:      field.TypeText,
		},
		{
			name:      "checkbox claim on small box",
			primary:   field.Detection{FieldType: field.TypeText, BBox: smallBox, Source: field.SourceStructure},
			secondary: field.Detection{FieldType: field.TypeCheckbox, Source: field.SourceVision},
			want:      field.TypeCheckbox,
		},
		{
			name:      "checkbox claim on wide box",
			primary:   field.Detection{FieldType: field.TypeText, BBox: wideBox, Source: field.SourceStructure},
			secondary: field.Detection{FieldType: field.TypeCheckbox, Source: field.SourceVision},
			want:      field.TypeText,
		},
		{
			name:      "geometric signature claim",
			primary:   field.Detection{FieldType: field.TypeText, BBox: wideBox, Source: field.SourceStructure},
			secondary: field.Detection{FieldType: field.TypeSignature, Source: field.SourceGeometric},
			want:      field.TypeSignature,
		},
		{
			name:      "signature claim against checkbox keeps winner",
			primary:   field.Detection{FieldType: field.TypeCheckbox, BBox: smallBox, Source: field.SourceStructure},
			secondary: field.Detection{FieldType: field.TypeSignature, Source: field.SourceGeometric},
			want:      field.TypeCheckbox,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveType(tt.primary, tt.secondary); got != tt.want {
				t.Errorf("resolveType = %q, want %q", got, tt.want)
			}
		})
	}
}
