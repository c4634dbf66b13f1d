package pdf

import (
	"bytes"
	"math"
	"strconv"
)

// PaintedRect is an axis-aligned rectangle painted by a content stream,
// in PDF points with a bottom-left origin.
type PaintedRect struct {
	X, Y, W, H float64
	Filled     bool
	Stroked    bool
	FillGray   float64
	StrokeGray float64
}

// StrokedLine is a stroked path segment in PDF points.
type StrokedLine struct {
	X0, Y0, X1, Y1 float64
	Gray           float64
}

// ImagePlacement records where a content stream draws an image XObject, as
// the device-space bounding box of the transformed unit square in PDF points.
type ImagePlacement struct {
	Name       string
	X, Y, W, H float64
}

// DisplayList is the geometry painted by a content stream.
type DisplayList struct {
	Rects  []PaintedRect
	Lines  []StrokedLine
	Images []ImagePlacement
}

// ParseContent interprets decoded content stream bytes and returns the
// geometry they paint. The interpreter tracks the transformation matrix and
// graphics state stack but ignores text and shading output.
func ParseContent(content []byte) DisplayList {
	in := contentInterp{gs: gstate{ctm: identity}}
	if len(content) > 0 {
		in.run(content)
	}
	return in.dl
}

// matrix is a PDF transformation matrix {a b c d e f}.
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// mul composes two matrices so that points transform through a before b.
func mul(a, b matrix) matrix {
	return matrix{
		a[0]*b[0] + a[1]*b[2],
		a[0]*b[1] + a[1]*b[3],
		a[2]*b[0] + a[3]*b[2],
		a[2]*b[1] + a[3]*b[3],
		a[4]*b[0] + a[5]*b[2] + b[4],
		a[4]*b[1] + a[5]*b[3] + b[5],
	}
}

type gstate struct {
	ctm        matrix
	strokeGray float64
	fillGray   float64
}

type contentInterp struct {
	dl       DisplayList
	gs       gstate
	gsStack  []gstate
	stack    []float64
	lastName string

	startX, startY float64
	curX, curY     float64
	hasCur         bool

	pendRects []PaintedRect
	pendLines []StrokedLine
}

func (in *contentInterp) run(content []byte) {
	tk := tokenizer{data: content}
	for {
		tok, ok := tk.next()
		if !ok {
			return
		}
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			in.stack = append(in.stack, v)
			continue
		}
		switch tok[0] {
		case '/':
			in.lastName = tok[1:]
			continue
		case '(', '<', '[', ']', '{', '}', '>':
			// Strings, arrays and dictionaries are operands of operators
			// that do not paint geometry.
			continue
		}
		in.op(tok, &tk)
	}
}

func (in *contentInterp) op(tok string, tk *tokenizer) {
	s := in.stack
	switch tok {
	case "q":
		in.gsStack = append(in.gsStack, in.gs)
	case "Q":
		if n := len(in.gsStack); n > 0 {
			in.gs = in.gsStack[n-1]
			in.gsStack = in.gsStack[:n-1]
		}
	case "cm":
		if len(s) >= 6 {
			m := matrix{s[len(s)-6], s[len(s)-5], s[len(s)-4], s[len(s)-3], s[len(s)-2], s[len(s)-1]}
			in.gs.ctm = mul(m, in.gs.ctm)
		}
	case "re":
		if len(s) >= 4 {
			in.addRect(s[len(s)-4], s[len(s)-3], s[len(s)-2], s[len(s)-1])
		}
	case "m":
		if len(s) >= 2 {
			in.moveTo(s[len(s)-2], s[len(s)-1])
		}
	case "l":
		if len(s) >= 2 {
			in.lineTo(s[len(s)-2], s[len(s)-1])
		}
	case "c":
		// Curves contribute their chord, which is enough for box and
		// underline geometry.
		if len(s) >= 6 {
			in.lineTo(s[len(s)-2], s[len(s)-1])
		}
	case "v", "y":
		if len(s) >= 4 {
			in.lineTo(s[len(s)-2], s[len(s)-1])
		}
	case "h":
		in.closePath()
	case "S":
		in.paint(false, true)
	case "s":
		in.closePath()
		in.paint(false, true)
	case "f", "F", "f*":
		in.paint(true, false)
	case "B", "B*":
		in.paint(true, true)
	case "b", "b*":
		in.closePath()
		in.paint(true, true)
	case "n":
		in.clearPath()
	case "g":
		if len(s) >= 1 {
			in.gs.fillGray = s[len(s)-1]
		}
	case "G":
		if len(s) >= 1 {
			in.gs.strokeGray = s[len(s)-1]
		}
	case "rg":
		if len(s) >= 3 {
			in.gs.fillGray = luminance(s[len(s)-3], s[len(s)-2], s[len(s)-1])
		}
	case "RG":
		if len(s) >= 3 {
			in.gs.strokeGray = luminance(s[len(s)-3], s[len(s)-2], s[len(s)-1])
		}
	case "k":
		if len(s) >= 4 {
			in.gs.fillGray = cmykGray(s[len(s)-4], s[len(s)-3], s[len(s)-2], s[len(s)-1])
		}
	case "K":
		if len(s) >= 4 {
			in.gs.strokeGray = cmykGray(s[len(s)-4], s[len(s)-3], s[len(s)-2], s[len(s)-1])
		}
	case "Do":
		if in.lastName != "" {
			in.placeXObject(in.lastName)
		}
	case "BI":
		tk.skipInlineImage()
	case "W", "W*", "BT", "ET":
		// Clip markers and text object delimiters carry no operands.
	}
	in.stack = in.stack[:0]
}

func (in *contentInterp) addRect(x, y, w, h float64) {
	x0, y0 := in.gs.ctm.apply(x, y)
	x1, y1 := in.gs.ctm.apply(x+w, y)
	x2, y2 := in.gs.ctm.apply(x, y+h)
	x3, y3 := in.gs.ctm.apply(x+w, y+h)
	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))
	in.pendRects = append(in.pendRects, PaintedRect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY})
	in.startX, in.startY = x0, y0
	in.curX, in.curY = x0, y0
	in.hasCur = true
}

func (in *contentInterp) moveTo(x, y float64) {
	in.curX, in.curY = in.gs.ctm.apply(x, y)
	in.startX, in.startY = in.curX, in.curY
	in.hasCur = true
}

func (in *contentInterp) lineTo(x, y float64) {
	nx, ny := in.gs.ctm.apply(x, y)
	if in.hasCur {
		in.pendLines = append(in.pendLines, StrokedLine{X0: in.curX, Y0: in.curY, X1: nx, Y1: ny})
	}
	in.curX, in.curY = nx, ny
	in.hasCur = true
}

func (in *contentInterp) closePath() {
	if in.hasCur && (in.curX != in.startX || in.curY != in.startY) {
		in.pendLines = append(in.pendLines, StrokedLine{X0: in.curX, Y0: in.curY, X1: in.startX, Y1: in.startY})
		in.curX, in.curY = in.startX, in.startY
	}
}

func (in *contentInterp) paint(fill, stroke bool) {
	for _, r := range in.pendRects {
		r.Filled = fill
		r.Stroked = stroke
		r.FillGray = in.gs.fillGray
		r.StrokeGray = in.gs.strokeGray
		in.dl.Rects = append(in.dl.Rects, r)
	}
	if stroke {
		for _, l := range in.pendLines {
			l.Gray = in.gs.strokeGray
			in.dl.Lines = append(in.dl.Lines, l)
		}
	}
	in.clearPath()
}

func (in *contentInterp) clearPath() {
	in.pendRects = in.pendRects[:0]
	in.pendLines = in.pendLines[:0]
	in.hasCur = false
}

func (in *contentInterp) placeXObject(name string) {
	x0, y0 := in.gs.ctm.apply(0, 0)
	x1, y1 := in.gs.ctm.apply(1, 0)
	x2, y2 := in.gs.ctm.apply(0, 1)
	x3, y3 := in.gs.ctm.apply(1, 1)
	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))
	in.dl.Images = append(in.dl.Images, ImagePlacement{Name: name, X: minX, Y: minY, W: maxX - minX, H: maxY - minY})
}

func luminance(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

func cmykGray(c, m, y, k float64) float64 {
	return luminance((1-c)*(1-k), (1-m)*(1-k), (1-y)*(1-k))
}

// tokenizer splits content stream bytes into PDF tokens.
type tokenizer struct {
	data []byte
	pos  int
}

func (t *tokenizer) next() (string, bool) {
	t.skipSpace()
	if t.pos >= len(t.data) {
		return "", false
	}
	c := t.data[t.pos]
	switch {
	case c == '%':
		t.skipComment()
		return t.next()
	case c == '(':
		return t.readString(), true
	case c == '<':
		if t.pos+1 < len(t.data) && t.data[t.pos+1] == '<' {
			t.pos += 2
			return "<<", true
		}
		return t.readHexString(), true
	case c == '>':
		if t.pos+1 < len(t.data) && t.data[t.pos+1] == '>' {
			t.pos += 2
			return ">>", true
		}
		t.pos++
		return ">", true
	case c == '[' || c == ']' || c == '{' || c == '}':
		t.pos++
		return string(c), true
	case c == '/':
		return t.readName(), true
	default:
		return t.readRegular(), true
	}
}

// skipInlineImage advances past the binary data of a BI..EI inline image.
func (t *tokenizer) skipInlineImage() {
	for t.pos+1 < len(t.data) {
		i := bytes.Index(t.data[t.pos:], []byte("EI"))
		if i < 0 {
			t.pos = len(t.data)
			return
		}
		at := t.pos + i
		beforeOK := at == 0 || isSpace(t.data[at-1])
		afterOK := at+2 >= len(t.data) || isSpace(t.data[at+2]) || isDelim(t.data[at+2])
		t.pos = at + 2
		if beforeOK && afterOK {
			return
		}
	}
	t.pos = len(t.data)
}

func (t *tokenizer) skipSpace() {
	for t.pos < len(t.data) && isSpace(t.data[t.pos]) {
		t.pos++
	}
}

func (t *tokenizer) skipComment() {
	for t.pos < len(t.data) && t.data[t.pos] != '\n' && t.data[t.pos] != '\r' {
		t.pos++
	}
}

func (t *tokenizer) readString() string {
	start := t.pos
	t.pos++
	depth := 1
	for t.pos < len(t.data) && depth > 0 {
		switch t.data[t.pos] {
		case '\\':
			t.pos++
		case '(':
			depth++
		case ')':
			depth--
		}
		t.pos++
	}
	return string(t.data[start:t.pos])
}

func (t *tokenizer) readHexString() string {
	start := t.pos
	t.pos++
	for t.pos < len(t.data) && t.data[t.pos] != '>' {
		t.pos++
	}
	if t.pos < len(t.data) {
		t.pos++
	}
	return string(t.data[start:t.pos])
}

func (t *tokenizer) readName() string {
	start := t.pos
	t.pos++
	for t.pos < len(t.data) && !isSpace(t.data[t.pos]) && !isDelim(t.data[t.pos]) {
		t.pos++
	}
	return string(t.data[start:t.pos])
}

func (t *tokenizer) readRegular() string {
	start := t.pos
	for t.pos < len(t.data) && !isSpace(t.data[t.pos]) && !isDelim(t.data[t.pos]) {
		t.pos++
	}
	if t.pos == start {
		t.pos++
	}
	return string(t.data[start:t.pos])
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
