package geometric

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/raster"
)

const (
	// Defaults for the rectangle pass size filter, as page ratios.
	DefaultMinFieldWidthRatio  = 0.05
	DefaultMinFieldHeightRatio = 0.005
	DefaultMaxFieldHeightRatio = 0.08

	closeKernelSize = 3
	minSidePx       = 3

	confBase       = 0.6
	confFillWeight = 0.3
	confMax        = 0.9

	lineKernelWidthRatio = 0.05
	lineMinWidthRatio    = 0.1
	lineMaxHeightRatio   = 0.01
	lineMinAspect        = 8.0
	confLine             = 0.85
)

// Config holds the rectangle pass size filter ratios.
type Config struct {
	MinFieldWidthRatio  float64
	MinFieldHeightRatio float64
	MaxFieldHeightRatio float64
}

// DefaultConfig returns the default detection thresholds.
func DefaultConfig() Config {
	return Config{
		MinFieldWidthRatio:  DefaultMinFieldWidthRatio,
		MinFieldHeightRatio: DefaultMinFieldHeightRatio,
		MaxFieldHeightRatio: DefaultMaxFieldHeightRatio,
	}
}

// Detector finds field candidates in rendered page rasters by shape:
// boxed regions and long horizontal rules.
type Detector struct {
	cfg Config
}

// NewDetector returns a Detector using cfg, falling back to defaults for
// unset ratios.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MinFieldWidthRatio <= 0 {
		cfg.MinFieldWidthRatio = def.MinFieldWidthRatio
	}
	if cfg.MinFieldHeightRatio <= 0 {
		cfg.MinFieldHeightRatio = def.MinFieldHeightRatio
	}
	if cfg.MaxFieldHeightRatio <= 0 {
		cfg.MaxFieldHeightRatio = def.MaxFieldHeightRatio
	}
	return &Detector{cfg: cfg}
}

type candidate struct {
	x, y, w, h int
	confidence float64
}

// DetectPage finds field candidates on one rendered page.
func (d *Detector) DetectPage(img image.Image, pageIndex int) []field.Detection {
	if img == nil {
		return nil
	}
	bounds := img.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()
	if imgW == 0 || imgH == 0 {
		return nil
	}

	gray := raster.GrayFromImage(img)
	defer gray.Release()
	binary := raster.AdaptiveMeanThreshold(gray, raster.DefaultThresholdBlockSize, raster.DefaultThresholdC)
	defer binary.Release()

	cands := d.detectRectangles(binary)
	cands = append(cands, d.detectLines(binary)...)

	counters := make(map[field.FieldType]int)
	dets := make([]field.Detection, 0, len(cands))
	for _, c := range cands {
		bbox, err := field.BBoxFromPixels(c.x, c.y, c.w, c.h, imgW, imgH)
		if err != nil {
			slog.Debug("Dropping candidate with invalid geometry", "page", pageIndex, "error", err)
			continue
		}
		ftype := field.ClassifyRasterShape(bbox.Width, bbox.Height)
		counters[ftype]++
		dets = append(dets, field.Detection{
			PageIndex:  pageIndex,
			BBox:       bbox,
			FieldType:  ftype,
			Label:      rasterLabel(ftype, counters[ftype]),
			Confidence: c.confidence,
			Source:     field.SourceGeometric,
		})
	}
	return dets
}

// detectRectangles closes small gaps and keeps components whose bounding
// rect is sized like an input box.
func (d *Detector) detectRectangles(binary raster.Binary) []candidate {
	closed := raster.Close(binary, closeKernelSize)
	defer closed.Release()

	minW := int(float64(binary.Width) * d.cfg.MinFieldWidthRatio)
	minH := int(float64(binary.Height) * d.cfg.MinFieldHeightRatio)
	maxH := int(float64(binary.Height) * d.cfg.MaxFieldHeightRatio)

	var out []candidate
	for _, c := range raster.Components(closed) {
		w, h := c.WidthPx(), c.HeightPx()
		if w < minW || h < minH || h > maxH {
			continue
		}
		if w < minSidePx || h < minSidePx {
			continue
		}
		area := w * h
		fill := 0.0
		if area > 0 {
			fill = float64(raster.EnclosedArea(closed, c)) / float64(area)
		}
		conf := math.Min(confMax, confBase+confFillWeight*fill)
		out = append(out, candidate{x: c.MinX, y: c.MinY, w: w, h: h, confidence: conf})
	}
	return out
}

// detectLines opens with a wide flat kernel so only long horizontal rules
// survive, then keeps the ones thin and wide enough to be write-on lines.
func (d *Detector) detectLines(binary raster.Binary) []candidate {
	kw := int(float64(binary.Width) * lineKernelWidthRatio)
	if kw < 1 {
		kw = 1
	}
	opened := raster.OpenHorizontal(binary, kw)
	defer opened.Release()

	minW := int(float64(binary.Width) * lineMinWidthRatio)
	maxH := int(float64(binary.Height) * lineMaxHeightRatio)

	var out []candidate
	for _, c := range raster.Components(opened) {
		w, h := c.WidthPx(), c.HeightPx()
		if w < minW || h < 1 || h > maxH {
			continue
		}
		if float64(w)/float64(h) < lineMinAspect {
			continue
		}
		out = append(out, candidate{x: c.MinX, y: c.MinY, w: w, h: h, confidence: confLine})
	}
	return out
}

func rasterLabel(t field.FieldType, n int) string {
	switch t {
	case field.TypeCheckbox:
		return fmt.Sprintf("Checkbox %d", n)
	case field.TypeSignature:
		return fmt.Sprintf("Signature %d", n)
	case field.TypeText:
		return fmt.Sprintf("Text Field %d", n)
	default:
		return fmt.Sprintf("Field %d", n)
	}
}
