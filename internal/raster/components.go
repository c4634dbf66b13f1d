package raster

import "container/list"

// Component is a 4-connected region of set pixels.
type Component struct {
	MinX, MinY int
	MaxX, MaxY int
	Count      int
}

// WidthPx returns the bounding-rect width in pixels.
func (c Component) WidthPx() int {
	return c.MaxX - c.MinX + 1
}

// HeightPx returns the bounding-rect height in pixels.
func (c Component) HeightPx() int {
	return c.MaxY - c.MinY + 1
}

// Fill returns the ratio of set pixels to bounding-rect area.
func (c Component) Fill() float64 {
	area := c.WidthPx() * c.HeightPx()
	if area == 0 {
		return 0
	}
	return float64(c.Count) / float64(area)
}

// Components finds all 4-connected components of set pixels, scanning
// rows top to bottom.
func Components(b Binary) []Component {
	visited := make([]bool, len(b.Pix))
	var comps []Component
	for y := range b.Height {
		for x := range b.Width {
			idx := y*b.Width + x
			if b.Pix[idx] && !visited[idx] {
				comps = append(comps, componentBFS(b, visited, x, y))
			}
		}
	}
	return comps
}

// EnclosedArea returns the pixel area enclosed by the component's outer
// boundary within its bounding rect, counting interior holes as enclosed.
// A hollow box outline therefore scores close to its full bounding area.
func EnclosedArea(b Binary, c Component) int {
	w := c.WidthPx()
	h := c.HeightPx()
	if w <= 0 || h <= 0 {
		return 0
	}

	// Flood the unset pixels reachable from the bounding rect border.
	// Whatever remains unreached is either set or sealed inside.
	outside := make([]bool, w*h)
	q := list.New()
	seed := func(x, y int) {
		idx := y*w + x
		if outside[idx] || b.At(c.MinX+x, c.MinY+y) {
			return
		}
		outside[idx] = true
		q.PushBack(idx)
	}
	for x := 0; x < w; x++ {
		seed(x, 0)
		seed(x, h-1)
	}
	for y := 0; y < h; y++ {
		seed(0, y)
		seed(w-1, y)
	}

	dirs := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	reached := q.Len()
	for q.Len() > 0 {
		e := q.Front()
		q.Remove(e)
		ci, ok := e.Value.(int)
		if !ok {
			continue
		}
		cx, cy := ci%w, ci/w
		for _, d := range dirs {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			ni := ny*w + nx
			if outside[ni] || b.At(c.MinX+nx, c.MinY+ny) {
				continue
			}
			outside[ni] = true
			reached++
			q.PushBack(ni)
		}
	}
	return w*h - reached
}

// componentBFS grows a component from a seed pixel.
func componentBFS(b Binary, visited []bool, startX, startY int) Component {
	c := Component{MinX: startX, MinY: startY, MaxX: startX, MaxY: startY}
	q := list.New()
	q.PushBack(startY*b.Width + startX)
	visited[startY*b.Width+startX] = true

	dirs := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for q.Len() > 0 {
		e := q.Front()
		q.Remove(e)
		ci, ok := e.Value.(int)
		if !ok {
			continue
		}
		cx, cy := ci%b.Width, ci/b.Width
		c.Count++
		if cx < c.MinX {
			c.MinX = cx
		}
		if cy < c.MinY {
			c.MinY = cy
		}
		if cx > c.MaxX {
			c.MaxX = cx
		}
		if cy > c.MaxY {
			c.MaxY = cy
		}
		for _, d := range dirs {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || nx >= b.Width || ny < 0 || ny >= b.Height {
				continue
			}
			ni := ny*b.Width + nx
			if b.Pix[ni] && !visited[ni] {
				visited[ni] = true
				q.PushBack(ni)
			}
		}
	}
	return c
}
