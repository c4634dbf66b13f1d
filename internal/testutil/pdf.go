package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Default page size in points (US Letter).
const (
	DefaultPageWidth  = 612.0
	DefaultPageHeight = 792.0
)

// PDFWidget describes an interactive form field bound to a widget annotation.
type PDFWidget struct {
	Name      string
	Rect      [4]float64 // x0, y0, x1, y1 in points
	FieldType string     // Tx, Btn, Sig or Ch; empty defaults to Tx
	Flags     int
}

// PDFPage describes one synthetic page. Zero dimensions default to US Letter.
type PDFPage struct {
	Width   float64
	Height  float64
	Content string // raw content stream operators
	Widgets []PDFWidget
}

// RectStroke returns a content stream fragment stroking a rectangle.
func RectStroke(x, y, w, h float64) string {
	return fmt.Sprintf("%g %g %g %g re S\n", x, y, w, h)
}

// RectPathStroke returns a content stream fragment drawing a rectangle
// outline as a closed path of line segments rather than a re operator.
func RectPathStroke(x, y, w, h float64) string {
	return fmt.Sprintf("%g %g m %g %g l %g %g l %g %g l h S\n",
		x, y, x+w, y, x+w, y+h, x, y+h)
}

// RectFill returns a content stream fragment filling a rectangle.
func RectFill(x, y, w, h float64) string {
	return fmt.Sprintf("%g %g %g %g re f\n", x, y, w, h)
}

// BuildPDF assembles a single-revision PDF document from the given pages.
// The output uses a classic cross-reference table and uncompressed streams
// so parsers and humans can both read it.
func BuildPDF(pages ...PDFPage) []byte {
	// Object numbers: 1 catalog, 2 page tree, then for each page the page
	// dictionary, its content stream and its widget annotations.
	type pageRefs struct {
		page    int
		content int
		widgets []int
	}
	next := 3
	refs := make([]pageRefs, len(pages))
	for i, p := range pages {
		refs[i].page = next
		next++
		if p.Content != "" {
			refs[i].content = next
			next++
		}
		for range p.Widgets {
			refs[i].widgets = append(refs[i].widgets, next)
			next++
		}
	}
	total := next - 1

	var fieldRefs []string
	for _, r := range refs {
		for _, n := range r.widgets {
			fieldRefs = append(fieldRefs, fmt.Sprintf("%d 0 R", n))
		}
	}

	var buf bytes.Buffer
	offsets := make([]int, total+1)
	object := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	catalog := "<< /Type /Catalog /Pages 2 0 R >>"
	if len(fieldRefs) > 0 {
		catalog = fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [%s] >> >>",
			strings.Join(fieldRefs, " "))
	}
	object(1, catalog)

	var kids []string
	for _, r := range refs {
		kids = append(kids, fmt.Sprintf("%d 0 R", r.page))
	}
	object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pages)))

	for i, p := range pages {
		w, h := p.Width, p.Height
		if w <= 0 {
			w = DefaultPageWidth
		}
		if h <= 0 {
			h = DefaultPageHeight
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << >>", w, h)
		if refs[i].content != 0 {
			fmt.Fprintf(&sb, " /Contents %d 0 R", refs[i].content)
		}
		if len(refs[i].widgets) > 0 {
			var annots []string
			for _, n := range refs[i].widgets {
				annots = append(annots, fmt.Sprintf("%d 0 R", n))
			}
			fmt.Fprintf(&sb, " /Annots [%s]", strings.Join(annots, " "))
		}
		sb.WriteString(" >>")
		object(refs[i].page, sb.String())

		if refs[i].content != 0 {
			object(refs[i].content, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream",
				len(p.Content), p.Content))
		}

		for j, wd := range p.Widgets {
			ft := wd.FieldType
			if ft == "" {
				ft = "Tx"
			}
			body := fmt.Sprintf(
				"<< /Type /Annot /Subtype /Widget /Rect [%g %g %g %g] /FT /%s /T (%s) /Ff %d /F 4 /P %d 0 R >>",
				wd.Rect[0], wd.Rect[1], wd.Rect[2], wd.Rect[3],
				ft, escapeString(wd.Name), wd.Flags, refs[i].page)
			object(refs[i].widgets[j], body)
		}
	}

	startxref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", total+1)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n <= total; n++ {
		fmt.Fprintf(&buf, "%010d %05d n \n", offsets[n], 0)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, startxref)
	return buf.Bytes()
}

// WritePDF writes a synthetic document into a test temp dir and returns its path.
func WritePDF(t *testing.T, pages ...PDFPage) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.pdf")
	require.NoError(t, os.WriteFile(path, BuildPDF(pages...), 0o600))
	return path
}

// escapeString escapes the characters with special meaning in PDF literal strings.
func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
