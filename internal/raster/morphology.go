package raster

// Binary morphology over boolean masks. Pixels outside the image count
// as clear during dilation and set during erosion, so shapes touching
// the border are not eaten by a close or open.

// Close fills small gaps: dilate then erode with a square kernel. The
// result is always a fresh mask the caller owns.
func Close(b Binary, kernelSize int) Binary {
	if kernelSize <= 1 {
		return b.Clone()
	}
	d := dilate(b, kernelSize, kernelSize)
	defer d.Release()
	return erode(d, kernelSize, kernelSize)
}

// OpenHorizontal suppresses everything but long horizontal runs: erode
// then dilate with a kernelWidth x 1 kernel. The result is always a
// fresh mask the caller owns.
func OpenHorizontal(b Binary, kernelWidth int) Binary {
	if kernelWidth <= 1 {
		return b.Clone()
	}
	e := erode(b, kernelWidth, 1)
	defer e.Release()
	return dilate(e, kernelWidth, 1)
}

func dilate(b Binary, kw, kh int) Binary {
	out := NewBinary(b.Width, b.Height)
	halfW, halfH := kw/2, kh/2
	for y := range b.Height {
		for x := range b.Width {
			set := false
			for ky := -halfH; ky <= halfH && !set; ky++ {
				for kx := -halfW; kx <= halfW; kx++ {
					if b.At(x+kx, y+ky) {
						set = true
						break
					}
				}
			}
			out.Pix[y*b.Width+x] = set
		}
	}
	return out
}

func erode(b Binary, kw, kh int) Binary {
	out := NewBinary(b.Width, b.Height)
	halfW, halfH := kw/2, kh/2
	for y := range b.Height {
		for x := range b.Width {
			set := true
			for ky := -halfH; ky <= halfH && set; ky++ {
				for kx := -halfW; kx <= halfW; kx++ {
					nx, ny := x+kx, y+ky
					if nx < 0 || nx >= b.Width || ny < 0 || ny >= b.Height {
						continue // border counts as set
					}
					if !b.Pix[ny*b.Width+nx] {
						set = false
						break
					}
				}
			}
			out.Pix[y*b.Width+x] = set
		}
	}
	return out
}
