// Package preview renders extracted meshes to small WebP thumbnails.
//
// Meshes are drawn flat-shaded under an orthographic three-quarter view,
// rendered at a multiple of the target size and scaled down.
package preview

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/woxQAQ/objparser-bridge/internal/mesh"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Options controls rendering.
type Options struct {
	// Edge length of the square output image.
	Size int
	// Render at Size*Supersample, then scale down.
	Supersample int
	// Base surface color before shading.
	Color [3]uint8
	// View rotation in degrees.
	Yaw, Pitch float64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Size:        256,
		Supersample: 2,
		Color:       [3]uint8{170, 180, 200},
		Yaw:         35,
		Pitch:       25,
	}
}

// ErrEmptyMesh is returned for meshes with no triangles.
var ErrEmptyMesh = errors.New("preview: mesh has no triangles")

// Renderer draws meshes with fixed options.
type Renderer struct {
	opts   Options
	logger *zap.Logger
}

// NewRenderer creates a renderer. Non-positive sizes fall back to defaults.
func NewRenderer(opts Options, logger *zap.Logger) *Renderer {
	def := DefaultOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.Supersample <= 0 {
		opts.Supersample = 1
	}
	if opts.Color == ([3]uint8{}) {
		opts.Color = def.Color
	}
	return &Renderer{
		opts:   opts,
		logger: logger.With(zap.String("component", "preview")),
	}
}

// Render draws m and returns an image of Size x Size pixels with a
// transparent background.
func (r *Renderer) Render(m *mesh.Mesh) (*image.NRGBA, error) {
	if m.TriangleCount() == 0 {
		return nil, ErrEmptyMesh
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	renderSize := r.opts.Size * r.opts.Supersample

	view := r.project(m)

	// Fit the projected bounds into the frame with a margin.
	lo := [2]float64{math.Inf(1), math.Inf(1)}
	hi := [2]float64{math.Inf(-1), math.Inf(-1)}
	for _, v := range view {
		for k := 0; k < 2; k++ {
			lo[k] = math.Min(lo[k], v[k])
			hi[k] = math.Max(hi[k], v[k])
		}
	}
	span := math.Max(hi[0]-lo[0], hi[1]-lo[1])
	if span < 1e-6 {
		span = 1e-6
	}
	margin := float64(renderSize) / 16
	scale := (float64(renderSize) - 2*margin) / span
	cx, cy := (lo[0]+hi[0])/2, (lo[1]+hi[1])/2
	half := float64(renderSize) / 2

	screen := make([][3]float64, len(view))
	for i, v := range view {
		screen[i] = [3]float64{
			half + (v[0]-cx)*scale,
			half - (v[1]-cy)*scale, // image y grows downwards
			v[2],
		}
	}

	fb := newFrameBuffer(renderSize)
	light := normalize([3]float64{0.4, 0.8, 0.6})
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		fb.rasterize([3][3]float64{screen[tri[0]], screen[tri[1]], screen[tri[2]]}, light, r.opts.Color)
	}

	img := image.NewNRGBA(image.Rect(0, 0, renderSize, renderSize))
	copy(img.Pix, fb.color)

	out := downsample(img, r.opts.Size)

	r.logger.Debug("Mesh rendered",
		zap.Int("triangles", m.TriangleCount()),
		zap.Int("size", r.opts.Size),
		zap.Int("supersample", r.opts.Supersample),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// project rotates every vertex into view space. Depth grows towards the
// viewer.
func (r *Renderer) project(m *mesh.Mesh) [][3]float64 {
	yaw := r.opts.Yaw * math.Pi / 180
	pitch := r.opts.Pitch * math.Pi / 180
	sy, cy := math.Sincos(yaw)
	sp, cp := math.Sincos(pitch)

	out := make([][3]float64, m.VertexCount())
	for i := range out {
		v := m.Vertex(i)
		x, y, z := float64(v[0]), float64(v[1]), float64(v[2])

		// yaw around Y
		x, z = x*cy+z*sy, -x*sy+z*cy
		// pitch around X
		y, z = y*cp-z*sp, y*sp+z*cp

		out[i] = [3]float64{x, y, z}
	}
	return out
}

// Encode renders m and writes it as WebP.
func (r *Renderer) Encode(w io.Writer, m *mesh.Mesh) error {
	img, err := r.Render(m)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(w, img, nil); err != nil {
		return fmt.Errorf("WebP encode: %w", err)
	}
	return nil
}

// WriteFile renders m into a WebP file at path, creating parent directories.
func (r *Renderer) WriteFile(path string, m *mesh.Mesh) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := r.Encode(f, m); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	r.logger.Info("Preview written", zap.String("path", path))
	return nil
}

// downsample scales img to size x size with alpha premultiplied, so
// transparent edges do not darken.
func downsample(img *image.NRGBA, size int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}

	premul := image.NewRGBA(b)
	for i := 0; i < len(img.Pix); i += 4 {
		a := uint32(img.Pix[i+3])
		premul.Pix[i] = uint8((uint32(img.Pix[i])*a + 127) / 255)
		premul.Pix[i+1] = uint8((uint32(img.Pix[i+1])*a + 127) / 255)
		premul.Pix[i+2] = uint8((uint32(img.Pix[i+2])*a + 127) / 255)
		premul.Pix[i+3] = img.Pix[i+3]
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), premul, premul.Bounds(), draw.Src, nil)

	result := image.NewNRGBA(dst.Bounds())
	for i := 0; i < len(dst.Pix); i += 4 {
		a := uint32(dst.Pix[i+3])
		if a > 0 {
			result.Pix[i] = unpremul(dst.Pix[i], a)
			result.Pix[i+1] = unpremul(dst.Pix[i+1], a)
			result.Pix[i+2] = unpremul(dst.Pix[i+2], a)
		}
		result.Pix[i+3] = dst.Pix[i+3]
	}
	return result
}

func unpremul(c uint8, a uint32) uint8 {
	v := (uint32(c)*255 + a/2) / a
	if v > 255 {
		return 255
	}
	return uint8(v)
}
