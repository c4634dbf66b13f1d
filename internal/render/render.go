package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"

	"github.com/fieldlens-tech/fieldlens/internal/pdf"
)

const (
	// DefaultDPI is the rendering resolution used when none is configured.
	DefaultDPI = 144.0

	pointsPerInch = 72.0
)

// Config holds rasterization settings.
type Config struct {
	DPI float64
}

// DefaultConfig returns the default rasterization settings.
func DefaultConfig() Config {
	return Config{DPI: DefaultDPI}
}

// PageRaster is a rendered page together with its pixel dimensions.
type PageRaster struct {
	PageIndex int
	Image     *image.RGBA
	WidthPx   int
	HeightPx  int
}

// Renderer rasterizes PDF pages by interpreting their content streams.
type Renderer struct {
	dpi float64
}

// NewRenderer returns a Renderer using cfg, falling back to the default DPI
// when unset.
func NewRenderer(cfg Config) *Renderer {
	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{dpi: dpi}
}

// DPI returns the configured rendering resolution.
func (r *Renderer) DPI() float64 { return r.dpi }

// RenderDocument rasterizes every page of doc. A page that fails to render
// yields a 1x1 white placeholder so page indexes stay aligned.
func (r *Renderer) RenderDocument(doc *pdf.Document) []PageRaster {
	pages := make([]PageRaster, doc.PageCount())
	for i := range pages {
		pr, err := r.RenderPage(doc, i)
		if err != nil {
			slog.Warn("Falling back to placeholder raster", "page", i, "error", err)
			pr = placeholderRaster(i)
		}
		pages[i] = pr
	}
	return pages
}

// RenderPage rasterizes a single zero-based page.
func (r *Renderer) RenderPage(doc *pdf.Document, pageIndex int) (PageRaster, error) {
	pageW, pageH, err := doc.PageSize(pageIndex)
	if err != nil {
		return PageRaster{}, err
	}
	if pageW <= 0 || pageH <= 0 {
		return PageRaster{}, fmt.Errorf("page %d has degenerate size %gx%g", pageIndex, pageW, pageH)
	}

	scale := r.dpi / pointsPerInch
	widthPx := int(math.Ceil(pageW * scale))
	heightPx := int(math.Ceil(pageH * scale))
	if widthPx < 1 {
		widthPx = 1
	}
	if heightPx < 1 {
		heightPx = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, widthPx, heightPx))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	content, err := doc.PageContent(pageIndex)
	if err != nil {
		return PageRaster{}, err
	}
	dl := pdf.ParseContent(content)

	cv := canvas{img: img, scale: scale, pageH: pageH}
	for _, l := range dl.Lines {
		cv.strokeLine(l)
	}
	for _, pr := range dl.Rects {
		cv.paintRect(pr)
	}
	for _, p := range dl.Images {
		if src, ok := doc.XObjectImage(pageIndex, p.Name); ok {
			cv.drawImage(src, p)
		} else {
			cv.outlinePlacement(p)
		}
	}

	return PageRaster{PageIndex: pageIndex, Image: img, WidthPx: widthPx, HeightPx: heightPx}, nil
}

func placeholderRaster(pageIndex int) PageRaster {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	return PageRaster{PageIndex: pageIndex, Image: img, WidthPx: 1, HeightPx: 1}
}

// EncodePNG serializes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
