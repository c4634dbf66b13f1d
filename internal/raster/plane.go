package raster

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/fieldlens-tech/fieldlens/internal/mempool"
)

// Gray is a single-channel pixel plane in row-major order.
type Gray struct {
	Pix    []uint8
	Width  int
	Height int
}

// Binary is a boolean pixel mask in row-major order. True marks ink.
type Binary struct {
	Pix    []bool
	Width  int
	Height int
}

// NewGray allocates a pooled grayscale plane. Call Release when done.
func NewGray(width, height int) Gray {
	return Gray{Pix: mempool.GetByte(width * height), Width: width, Height: height}
}

// Release returns the plane's pixels to the pool.
func (g Gray) Release() {
	mempool.PutByte(g.Pix)
}

// NewBinary allocates a pooled mask. Call Release when done.
func NewBinary(width, height int) Binary {
	return Binary{Pix: mempool.GetBool(width * height), Width: width, Height: height}
}

// Release returns the mask's pixels to the pool.
func (b Binary) Release() {
	mempool.PutBool(b.Pix)
}

// Clone returns an independent pooled copy of the mask.
func (b Binary) Clone() Binary {
	out := NewBinary(b.Width, b.Height)
	copy(out.Pix, b.Pix)
	return out
}

// At reports the mask value at (x, y); out-of-bounds reads are false.
func (b Binary) At(x, y int) bool {
	if x < 0 || x >= b.Width || y < 0 || y >= b.Height {
		return false
	}
	return b.Pix[y*b.Width+x]
}

// GrayFromImage converts an image to a pooled grayscale plane.
func GrayFromImage(img image.Image) Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	g := NewGray(w, h)
	// imaging.Grayscale yields an NRGBA with equal channels; lift the
	// red channel into the plane.
	nrgba := imaging.Grayscale(img)
	for y := range h {
		srcRow := nrgba.Pix[y*nrgba.Stride:]
		dstRow := g.Pix[y*w:]
		for x := range w {
			dstRow[x] = srcRow[x*4]
		}
	}
	return g
}
