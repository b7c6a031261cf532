// Package mesh holds host-owned triangle meshes and their OBJ text form.
package mesh

import (
	"fmt"
	"math"
)

// Mesh is a triangle mesh owned by the host. Vertices holds xyz triplets;
// Indices holds zero-based vertex indices, three per triangle.
type Mesh struct {
	Vertices []float32
	Indices  []uint32
}

// New builds a mesh from vertex triplets and indices.
func New(vertices [][3]float32, indices []uint32) *Mesh {
	flat := make([]float32, 0, len(vertices)*3)
	for _, v := range vertices {
		flat = append(flat, v[0], v[1], v[2])
	}
	return &Mesh{Vertices: flat, Indices: indices}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Vertex returns the position of vertex i.
func (m *Mesh) Vertex(i int) [3]float32 {
	return [3]float32{m.Vertices[i*3], m.Vertices[i*3+1], m.Vertices[i*3+2]}
}

// Triangle returns the three vertex indices of triangle i.
func (m *Mesh) Triangle(i int) [3]uint32 {
	return [3]uint32{m.Indices[i*3], m.Indices[i*3+1], m.Indices[i*3+2]}
}

// Validate checks the buffer shapes and that every index names a vertex.
func (m *Mesh) Validate() error {
	if len(m.Vertices)%3 != 0 {
		return &ValidationError{Msg: fmt.Sprintf("vertex buffer length %d is not a multiple of 3", len(m.Vertices))}
	}
	if len(m.Indices)%3 != 0 {
		return &ValidationError{Msg: fmt.Sprintf("index buffer length %d is not a multiple of 3", len(m.Indices))}
	}
	n := uint32(m.VertexCount())
	for i, idx := range m.Indices {
		if idx >= n {
			return &ValidationError{
				Msg:   fmt.Sprintf("index %d out of range for %d vertices", idx, n),
				Index: i,
			}
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box. An empty mesh has zero bounds.
func (m *Mesh) Bounds() (min, max [3]float32) {
	if m.VertexCount() == 0 {
		return min, max
	}
	for k := 0; k < 3; k++ {
		min[k] = math.MaxFloat32
		max[k] = -math.MaxFloat32
	}
	for i := 0; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		for k := 0; k < 3; k++ {
			if v[k] < min[k] {
				min[k] = v[k]
			}
			if v[k] > max[k] {
				max[k] = v[k]
			}
		}
	}
	return min, max
}

// ValidationError occurs when a mesh breaks its shape or index invariants.
type ValidationError struct {
	Msg string
	// Index is the position in Indices that failed, or 0.
	Index int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid mesh: %s", e.Msg)
}
