package field

import (
	"errors"
	"fmt"
	"math"
)

// boundsEpsilon absorbs floating-point drift when checking that a box
// stays inside the unit square.
const boundsEpsilon = 1e-6

// ErrInvalidBBox reports a bounding box that violates the normalized
// coordinate invariants.
var ErrInvalidBBox = errors.New("invalid bounding box")

// BBox is an axis-aligned bounding box in normalized page coordinates.
// X and Y locate the lower-left corner with the origin at the page's
// bottom-left; all values are fractions of the page dimensions.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewBBox validates and returns a normalized bounding box.
func NewBBox(x, y, width, height float64) (BBox, error) {
	b := BBox{X: x, Y: y, Width: width, Height: height}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate checks the normalized-coordinate invariants: every component
// in [0,1], positive extent, and the box contained in the unit square.
func (b BBox) Validate() error {
	values := [...]float64{b.X, b.Y, b.Width, b.Height}
	names := [...]string{"x", "y", "width", "height"}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v outside [0,1]", ErrInvalidBBox, names[i], v)
		}
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: width=%v height=%v must be positive", ErrInvalidBBox, b.Width, b.Height)
	}
	if b.X+b.Width > 1+boundsEpsilon {
		return fmt.Errorf("%w: x+width=%v exceeds 1", ErrInvalidBBox, b.X+b.Width)
	}
	if b.Y+b.Height > 1+boundsEpsilon {
		return fmt.Errorf("%w: y+height=%v exceeds 1", ErrInvalidBBox, b.Y+b.Height)
	}
	return nil
}

// Rect returns the box corners as (minX, minY, maxX, maxY).
func (b BBox) Rect() (minX, minY, maxX, maxY float64) {
	return b.X, b.Y, b.X + b.Width, b.Y + b.Height
}

// Area returns the normalized area of the box.
func (b BBox) Area() float64 {
	return b.Width * b.Height
}

// Center returns the center point of the box.
func (b BBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Intersects reports whether the two boxes share any area.
func (b BBox) Intersects(o BBox) bool {
	return b.IntersectionArea(o) > 0
}

// IntersectionArea returns the area shared by the two boxes, zero when
// they are disjoint or touch only at an edge.
func (b BBox) IntersectionArea(o BBox) float64 {
	left := math.Max(b.X, o.X)
	bottom := math.Max(b.Y, o.Y)
	right := math.Min(b.X+b.Width, o.X+o.Width)
	top := math.Min(b.Y+b.Height, o.Y+o.Height)
	if left >= right || bottom >= top {
		return 0
	}
	return (right - left) * (top - bottom)
}

// IoU returns the intersection-over-union of the two boxes. Boxes whose
// union has no area score zero.
func (b BBox) IoU(o BBox) float64 {
	inter := b.IntersectionArea(o)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// BBoxFromRect builds a box from corner coordinates. Values are taken
// as-is; callers clamp to the page before converting.
func BBoxFromRect(minX, minY, maxX, maxY float64) (BBox, error) {
	return NewBBox(minX, minY, maxX-minX, maxY-minY)
}

// BBoxFromPixels converts a top-left-origin pixel rectangle into a
// normalized bottom-left box for an image of the given dimensions.
// Values are not clamped; out-of-range rectangles fail validation.
func BBoxFromPixels(xPx, yPx, widthPx, heightPx, imgWidth, imgHeight int) (BBox, error) {
	if imgWidth <= 0 || imgHeight <= 0 {
		return BBox{}, fmt.Errorf("%w: image dimensions %dx%d must be positive", ErrInvalidBBox, imgWidth, imgHeight)
	}
	x := float64(xPx) / float64(imgWidth)
	y := 1 - float64(yPx+heightPx)/float64(imgHeight)
	w := float64(widthPx) / float64(imgWidth)
	h := float64(heightPx) / float64(imgHeight)
	return NewBBox(x, y, w, h)
}
