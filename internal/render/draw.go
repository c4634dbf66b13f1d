package render

import (
	"image"
	"image/color"
	"math"

	"github.com/fieldlens-tech/fieldlens/internal/pdf"
)

// placeholderGray outlines image placements whose pixels cannot be decoded.
const placeholderGray = 160

// canvas draws display list items onto a page raster, flipping the PDF
// bottom-left origin to the image top-left origin.
type canvas struct {
	img   *image.RGBA
	scale float64
	pageH float64
}

func (c *canvas) toDevice(x, y float64) (int, int) {
	return int(math.Round(x * c.scale)), int(math.Round((c.pageH - y) * c.scale))
}

func (c *canvas) set(x, y int, col color.RGBA) {
	if x < 0 || y < 0 || x >= c.img.Bounds().Dx() || y >= c.img.Bounds().Dy() {
		return
	}
	c.img.SetRGBA(x, y, col)
}

func (c *canvas) paintRect(r pdf.PaintedRect) {
	x0, y1 := c.toDevice(r.X, r.Y)
	x1, y0 := c.toDevice(r.X+r.W, r.Y+r.H)
	if r.Filled {
		col := grayColor(r.FillGray)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				c.set(x, y, col)
			}
		}
	}
	if r.Stroked {
		c.outline(x0, y0, x1, y1, grayColor(r.StrokeGray))
	}
}

func (c *canvas) outline(x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		c.set(x, y0, col)
		c.set(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		c.set(x0, y, col)
		c.set(x1, y, col)
	}
}

func (c *canvas) strokeLine(l pdf.StrokedLine) {
	x0, y0 := c.toDevice(l.X0, l.Y0)
	x1, y1 := c.toDevice(l.X1, l.Y1)
	col := grayColor(l.Gray)

	dx := intAbs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -intAbs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	e := dx + dy
	for {
		c.set(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (c *canvas) drawImage(src image.Image, p pdf.ImagePlacement) {
	dstX0, dstY0 := c.toDevice(p.X, p.Y+p.H)
	dstX1, dstY1 := c.toDevice(p.X+p.W, p.Y)
	dstW := dstX1 - dstX0
	dstH := dstY1 - dstY0
	if dstW <= 0 || dstH <= 0 {
		return
	}

	sb := src.Bounds()
	srcW := sb.Dx()
	srcH := sb.Dy()
	if srcW == 0 || srcH == 0 {
		return
	}

	// Nearest neighbor keeps edges crisp for the pixel passes downstream.
	for y := 0; y < dstH; y++ {
		sy := sb.Min.Y + y*srcH/dstH
		for x := 0; x < dstW; x++ {
			sx := sb.Min.X + x*srcW/dstW
			r, g, b, a := src.At(sx, sy).RGBA()
			c.set(dstX0+x, dstY0+y, color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)})
		}
	}
}

func (c *canvas) outlinePlacement(p pdf.ImagePlacement) {
	x0, y1 := c.toDevice(p.X, p.Y)
	x1, y0 := c.toDevice(p.X+p.W, p.Y+p.H)
	col := color.RGBA{placeholderGray, placeholderGray, placeholderGray, 255}
	c.outline(x0, y0, x1, y1, col)
}

func grayColor(level float64) color.RGBA {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	v := uint8(math.Round(level * 255))
	return color.RGBA{v, v, v, 255}
}

func intAbs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
