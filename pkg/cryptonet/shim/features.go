package shim

import "math"

const grid = 8

// layout describes where the colour channels sit within one pixel.
type layout struct {
	channels int
	r, g, b  int
}

var layouts = map[string]layout{
	"rgba": {channels: 4, r: 0, g: 1, b: 2},
	"rgbx": {channels: 4, r: 0, g: 1, b: 2},
	"rgb":  {channels: 3, r: 0, g: 1, b: 2},
	"bgr":  {channels: 3, r: 2, g: 1, b: 0},
	"gray": {channels: 1},
}

func (lo layout) luma(px []byte) float64 {
	if lo.channels == 1 {
		return float64(px[0])
	}
	return 0.299*float64(px[lo.r]) + 0.587*float64(px[lo.g]) + 0.114*float64(px[lo.b])
}

// signature reduces an image to a grid×grid area-averaged luminance map,
// centred on its mean and scaled to unit length. ok is false when the image
// is flat and carries no signal.
func signature(pixels []byte, width, height int, lo layout) (vec []float64, ok bool) {
	vec = make([]float64, grid*grid)
	for gy := 0; gy < grid; gy++ {
		y0, y1 := span(gy, height)
		for gx := 0; gx < grid; gx++ {
			x0, x1 := span(gx, width)
			var sum float64
			for y := y0; y < y1; y++ {
				row := y * width * lo.channels
				for x := x0; x < x1; x++ {
					off := row + x*lo.channels
					sum += lo.luma(pixels[off : off+lo.channels])
				}
			}
			vec[gy*grid+gx] = sum / float64((y1-y0)*(x1-x0))
		}
	}

	var mean float64
	for _, v := range vec {
		mean += v
	}
	mean /= float64(len(vec))
	var norm float64
	for i := range vec {
		vec[i] -= mean
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm < 1e-9 {
		return nil, false
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, true
}

// span returns the pixel range covered by cell i of an axis of length n.
// Axes shorter than the grid reuse pixels across cells.
func span(i, n int) (lo, hi int) {
	lo = i * n / grid
	hi = (i + 1) * n / grid
	if hi <= lo {
		hi = lo + 1
	}
	if hi > n {
		lo, hi = n-1, n
	}
	return lo, hi
}

// cosine assumes both vectors are unit length.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return math.Max(-1, math.Min(1, dot))
}
