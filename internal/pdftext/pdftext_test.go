package pdftext

import (
	"testing"

	"github.com/ledongthuc/pdf"
)

func frag(s string, x, y, w, size float64) pdf.Text {
	return pdf.Text{S: s, X: x, Y: y, W: w, FontSize: size}
}

func TestGroupLinesMergesBaseline(t *testing.T) {
	frags := []pdf.Text{
		frag("Full", 10, 700, 20, 10),
		frag(" ", 30, 700, 3, 10),
		frag("Name:", 33, 700, 28, 10),
	}
	lines := GroupLines(frags)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Text != "Full Name:" {
		t.Errorf("joined text = %q", lines[0].Text)
	}
	if lines[0].MinX != 10 || lines[0].MaxX != 61 {
		t.Errorf("x bounds = [%v, %v]", lines[0].MinX, lines[0].MaxX)
	}
	if lines[0].MinY != 700 || lines[0].MaxY != 710 {
		t.Errorf("y bounds = [%v, %v]", lines[0].MinY, lines[0].MaxY)
	}
}

func TestGroupLinesInsertsSpaceAcrossGap(t *testing.T) {
	frags := []pdf.Text{
		frag("First", 10, 700, 22, 10),
		frag("Last", 60, 700, 20, 10),
	}
	lines := GroupLines(frags)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Text != "First Last" {
		t.Errorf("text = %q", lines[0].Text)
	}
}

func TestGroupLinesSplitsBaselines(t *testing.T) {
	frags := []pdf.Text{
		frag("Line one", 10, 700, 40, 10),
		frag("Line two", 10, 680, 40, 10),
	}
	lines := GroupLines(frags)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	// Top line first.
	if lines[0].Text != "Line one" || lines[1].Text != "Line two" {
		t.Errorf("order wrong: %q, %q", lines[0].Text, lines[1].Text)
	}
}

func TestGroupLinesSkipsEmptyAndDefaultsHeight(t *testing.T) {
	frags := []pdf.Text{
		frag("", 10, 700, 0, 10),
		frag("x", 10, 500, 6, 0),
	}
	lines := GroupLines(frags)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if h := lines[0].HeightPt(); h != defaultLineHeight {
		t.Errorf("default height = %v, want %v", h, defaultLineHeight)
	}
}

func TestTextInRegion(t *testing.T) {
	doc := &Document{pages: [][]Line{{
		{Text: "Name:", MinX: 20, MinY: 700, MaxX: 60, MaxY: 712},
		{Text: "Address:", MinX: 20, MinY: 650, MaxX: 75, MaxY: 662},
		{Text: "page footer", MinX: 20, MinY: 30, MaxX: 120, MaxY: 42},
	}}}

	got := doc.TextInRegion(0, 0, 690, 100, 720)
	if got != "Name:" {
		t.Errorf("region text = %q, want %q", got, "Name:")
	}

	// Region spanning both upper labels returns them top to bottom.
	got = doc.TextInRegion(0, 0, 640, 100, 720)
	if got != "Name: Address:" {
		t.Errorf("region text = %q", got)
	}

	// A sliver of overlap is not enough.
	got = doc.TextInRegion(0, 0, 710, 100, 720)
	if got != "" {
		t.Errorf("expected no text for sliver overlap, got %q", got)
	}
}

func TestTextInRegionOutOfRange(t *testing.T) {
	doc := &Document{pages: [][]Line{nil}}
	if got := doc.TextInRegion(3, 0, 0, 100, 100); got != "" {
		t.Errorf("out-of-range page returned %q", got)
	}
	if lines := doc.PageLines(-1); lines != nil {
		t.Error("negative page should return nil")
	}
}
