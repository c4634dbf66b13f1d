package pdftext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// defaultLineHeight stands in when a fragment carries no font size.
const defaultLineHeight = 12.0

// Line is a horizontal run of text on a page, in PDF points with the
// origin at the page's bottom-left corner.
type Line struct {
	Text string
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// WidthPt returns the line width in points.
func (l Line) WidthPt() float64 {
	return l.MaxX - l.MinX
}

// HeightPt returns the line height in points.
func (l Line) HeightPt() float64 {
	return l.MaxY - l.MinY
}

// Document holds the positioned text of a PDF, extracted once and
// queried per page.
type Document struct {
	pages [][]Line
}

// NewDocument assembles a Document from already extracted per-page lines.
func NewDocument(pages [][]Line) *Document {
	return &Document{pages: pages}
}

// ExtractFile reads positioned text for every page of a PDF. Pages
// whose content cannot be parsed yield no lines but do not fail the
// whole document.
func ExtractFile(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf for text extraction: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc := &Document{pages: make([][]Line, r.NumPage())}
	for n := 1; n <= r.NumPage(); n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		doc.pages[n-1] = pageLines(page)
	}
	return doc, nil
}

// pageLines extracts one page's lines. The underlying parser panics on
// malformed content streams, so recover and treat the page as empty.
func pageLines(page pdf.Page) (lines []Line) {
	defer func() {
		if r := recover(); r != nil {
			lines = nil
		}
	}()
	return GroupLines(page.Content().Text)
}

// PageCount returns the number of pages seen at extraction time.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// PageLines returns the text lines of a zero-based page, nil when the
// page is out of range or empty.
func (d *Document) PageLines(pageIndex int) []Line {
	if pageIndex < 0 || pageIndex >= len(d.pages) {
		return nil
	}
	return d.pages[pageIndex]
}

// TextInRegion joins the text of all lines lying mostly inside the
// given rect (points, bottom-left origin) on a page, top to bottom and
// left to right. A line qualifies when at least half of its area falls
// within the region.
func (d *Document) TextInRegion(pageIndex int, minX, minY, maxX, maxY float64) string {
	lines := d.PageLines(pageIndex)
	if len(lines) == 0 {
		return ""
	}
	var picked []Line
	for _, l := range lines {
		area := l.WidthPt() * l.HeightPt()
		if area <= 0 {
			continue
		}
		ix := minFloat(l.MaxX, maxX) - maxFloat(l.MinX, minX)
		iy := minFloat(l.MaxY, maxY) - maxFloat(l.MinY, minY)
		if ix <= 0 || iy <= 0 {
			continue
		}
		if ix*iy >= area/2 {
			picked = append(picked, l)
		}
	}
	if len(picked) == 0 {
		return ""
	}
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].MaxY != picked[j].MaxY {
			return picked[i].MaxY > picked[j].MaxY
		}
		return picked[i].MinX < picked[j].MinX
	})
	parts := make([]string, 0, len(picked))
	for _, l := range picked {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, " ")
}

// GroupLines clusters raw text fragments into lines: fragments whose
// baselines sit within half a line height of each other are merged
// left to right.
func GroupLines(frags []pdf.Text) []Line {
	if len(frags) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(frags))
	copy(sorted, frags)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []Line
	var cur Line
	var curHeight float64
	open := false
	for _, frag := range sorted {
		if frag.S == "" {
			continue
		}
		height := frag.FontSize
		if height <= 0 {
			height = defaultLineHeight
		}
		if open && sameBaseline(cur.MinY, frag.Y, maxFloat(curHeight, height)) {
			// Wide gaps between fragments become a single space.
			if frag.X > cur.MaxX+height*0.25 {
				cur.Text += " " + frag.S
			} else {
				cur.Text += frag.S
			}
			cur.MinX = minFloat(cur.MinX, frag.X)
			cur.MaxX = maxFloat(cur.MaxX, frag.X+frag.W)
			cur.MinY = minFloat(cur.MinY, frag.Y)
			cur.MaxY = maxFloat(cur.MaxY, frag.Y+height)
			curHeight = maxFloat(curHeight, height)
			continue
		}
		if open {
			lines = append(lines, cur)
		}
		cur = Line{Text: frag.S, MinX: frag.X, MinY: frag.Y, MaxX: frag.X + frag.W, MaxY: frag.Y + height}
		curHeight = height
		open = true
	}
	if open {
		lines = append(lines, cur)
	}
	return lines
}

func sameBaseline(y1, y2, height float64) bool {
	diff := y1 - y2
	if diff < 0 {
		diff = -diff
	}
	return diff < height/2
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
