package raster

// Default adaptive threshold parameters for page binarization.
const (
	DefaultThresholdBlockSize = 11
	DefaultThresholdC         = 2
)

// AdaptiveMeanThreshold binarizes a grayscale plane against the local
// neighborhood mean: a pixel is set when it is at least c levels darker
// than the mean of the blockSize x blockSize window around it. Set
// pixels therefore mark ink on a light page. Windows are clipped at the
// image border. An even blockSize is widened by one.
func AdaptiveMeanThreshold(g Gray, blockSize, c int) Binary {
	out := NewBinary(g.Width, g.Height)
	if g.Width == 0 || g.Height == 0 {
		return out
	}
	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize%2 == 0 {
		blockSize++
	}
	half := blockSize / 2

	// Summed-area table over (w+1) x (h+1) for O(1) window means.
	w, h := g.Width, g.Height
	integral := make([]uint64, (w+1)*(h+1))
	for y := range h {
		var rowSum uint64
		for x := range w {
			rowSum += uint64(g.Pix[y*w+x])
			integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + rowSum
		}
	}

	for y := range h {
		y0 := max(0, y-half)
		y1 := min(h-1, y+half)
		for x := range w {
			x0 := max(0, x-half)
			x1 := min(w-1, x+half)
			count := (x1 - x0 + 1) * (y1 - y0 + 1)
			sum := integral[(y1+1)*(w+1)+(x1+1)] -
				integral[y0*(w+1)+(x1+1)] -
				integral[(y1+1)*(w+1)+x0] +
				integral[y0*(w+1)+x0]
			mean := float64(sum) / float64(count)
			out.Pix[y*w+x] = float64(g.Pix[y*w+x]) < mean-float64(c)
		}
	}
	return out
}
