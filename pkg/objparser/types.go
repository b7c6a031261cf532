// Package objparser exposes the OBJ engine bridge to host applications.
//
// WasmParser serves hosts that run the engine as WebAssembly. It loads in
// the background and hands out typed arrays. NativeParser serves hosts that
// link the engine as a shared library and want mesh-shaped values.
package objparser

import (
	"context"
	"time"

	"github.com/woxQAQ/objparser-bridge/internal/bridge"
	"github.com/woxQAQ/objparser-bridge/internal/mesh"
)

// Arrays is a parsed mesh as flat typed arrays: xyz triplets and triangle
// corner indices.
type Arrays struct {
	Vertices []float32 `json:"vertices"`
	Indices  []uint32  `json:"indices"`
}

// Mesh returns the arrays as a mesh without copying.
func (a *Arrays) Mesh() *mesh.Mesh {
	return &mesh.Mesh{Vertices: a.Vertices, Indices: a.Indices}
}

// Obj encodes the arrays as OBJ text.
func (a *Arrays) Obj() string {
	return WriteObj(a.Vertices, a.Indices)
}

// WriteObj encodes vertices and triangle indices as OBJ "v" and "f" lines.
func WriteObj(vertices []float32, indices []uint32) string {
	return mesh.EncodeOBJ(&mesh.Mesh{Vertices: vertices, Indices: indices})
}

// Stats summarizes a parse for reporting.
type Stats struct {
	Engine    string        `json:"engine"`
	Kind      string        `json:"kind"`
	Source    string        `json:"source"`
	Accepted  bool          `json:"accepted"`
	Vertices  int           `json:"vertices"`
	Triangles int           `json:"triangles"`
	Min       [3]float32    `json:"min"`
	Max       [3]float32    `json:"max"`
	Duration  time.Duration `json:"duration_ns"`
}

// NewStats fills the geometry fields of a Stats from a. A nil a is a
// rejected parse.
func NewStats(a *Arrays) Stats {
	if a == nil {
		return Stats{}
	}
	m := a.Mesh()
	lo, hi := m.Bounds()
	return Stats{
		Accepted:  true,
		Vertices:  m.VertexCount(),
		Triangles: m.TriangleCount(),
		Min:       lo,
		Max:       hi,
	}
}

// Parser is what both hosts have in common.
type Parser interface {
	// ParseArrays parses OBJ text. A nil result with a nil error means the
	// engine rejected the input.
	ParseArrays(ctx context.Context, data []byte) (*Arrays, error)
	// ParseFileArrays parses the OBJ file at path.
	ParseFileArrays(ctx context.Context, path string) (*Arrays, error)
	// Ready is closed once the engine is loaded.
	Ready() <-chan struct{}
	Close(ctx context.Context) error
}

// core adapts a bridge to the host-facing result types.
type core struct {
	bridge *bridge.Bridge
}

func (c *core) ParseArrays(ctx context.Context, data []byte) (*Arrays, error) {
	m, err := c.bridge.Parse(ctx, data)
	return arrays(m), err
}

func (c *core) ParseFileArrays(ctx context.Context, path string) (*Arrays, error) {
	m, err := c.bridge.ParseFile(ctx, path)
	return arrays(m), err
}

func (c *core) Ready() <-chan struct{} {
	return c.bridge.Ready()
}

// Wait blocks until the engine is loaded and returns the load error.
func (c *core) Wait(ctx context.Context) error {
	return c.bridge.Wait(ctx)
}

func arrays(m *mesh.Mesh) *Arrays {
	if m == nil {
		return nil
	}
	return &Arrays{Vertices: m.Vertices, Indices: m.Indices}
}
