package preview

import (
	"math"
)

// frameBuffer holds the render target as flat slices.
type frameBuffer struct {
	size  int
	color []uint8   // RGBA interleaved
	depth []float64 // larger is closer, starts at -inf
}

func newFrameBuffer(size int) *frameBuffer {
	n := size * size
	depth := make([]float64, n)
	for i := range depth {
		depth[i] = math.Inf(-1)
	}
	return &frameBuffer{
		size:  size,
		color: make([]uint8, n*4),
		depth: depth,
	}
}

// rasterize fills one flat-shaded triangle with depth testing. Degenerate
// triangles are skipped.
func (fb *frameBuffer) rasterize(p [3][3]float64, light [3]float64, base [3]uint8) {
	x0, y0, z0 := p[0][0], p[0][1], p[0][2]
	x1, y1, z1 := p[1][0], p[1][1], p[1][2]
	x2, y2, z2 := p[2][0], p[2][1], p[2][2]

	// Face normal for flat shading
	e1x, e1y, e1z := x1-x0, y1-y0, z1-z0
	e2x, e2y, e2z := x2-x0, y2-y0, z2-z0
	nx := e1y*e2z - e1z*e2y
	ny := e1z*e2x - e1x*e2z
	nz := e1x*e2y - e1y*e2x
	nl := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if nl < 1e-12 {
		return
	}

	// Double-sided Lambert plus ambient
	ndl := math.Abs(nx*light[0]+ny*light[1]+nz*light[2]) / nl
	shade := 0.35 + 0.65*ndl

	area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if math.Abs(area) < 1e-12 {
		return
	}
	invArea := 1 / area

	minX := clampInt(int(math.Floor(math.Min(math.Min(x0, x1), x2))), 0, fb.size-1)
	maxX := clampInt(int(math.Ceil(math.Max(math.Max(x0, x1), x2))), 0, fb.size-1)
	minY := clampInt(int(math.Floor(math.Min(math.Min(y0, y1), y2))), 0, fb.size-1)
	maxY := clampInt(int(math.Ceil(math.Max(math.Max(y0, y1), y2))), 0, fb.size-1)

	r := shadeChannel(base[0], shade)
	g := shadeChannel(base[1], shade)
	b := shadeChannel(base[2], shade)

	for y := minY; y <= maxY; y++ {
		cy := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			cx := float64(x) + 0.5

			w0 := ((x1-cx)*(y2-cy) - (x2-cx)*(y1-cy)) * invArea
			w1 := ((x2-cx)*(y0-cy) - (x0-cx)*(y2-cy)) * invArea
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}

			z := w0*z0 + w1*z1 + w2*z2
			i := y*fb.size + x
			if z <= fb.depth[i] {
				continue
			}
			fb.depth[i] = z

			c := i * 4
			fb.color[c] = r
			fb.color[c+1] = g
			fb.color[c+2] = b
			fb.color[c+3] = 255
		}
	}
}

func shadeChannel(v uint8, shade float64) uint8 {
	s := float64(v) * shade
	if s > 255 {
		return 255
	}
	return uint8(s + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalize(v [3]float64) [3]float64 {
	l := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if l == 0 {
		return v
	}
	return [3]float64{v[0] / l, v[1] / l, v[2] / l}
}
