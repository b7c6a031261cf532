package bridge

import (
	"context"
	"fmt"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/memview"
	"github.com/woxQAQ/objparser-bridge/internal/mesh"
	"go.uber.org/zap"
)

// extract copies the vertex and index buffers behind raw into a Mesh.
//
// Each pointer is used for exactly one copy before the next engine call,
// since any call may reallocate engine memory. Must be called with the
// bridge lock held.
func (b *Bridge) extract(ctx context.Context, raw engine.Handle) (*mesh.Mesh, error) {
	eng := b.engine

	vertexCount, err := eng.VertexCount(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query vertex count: %w", err)
	}
	vertexPtr, err := eng.VertexPositions(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query vertex positions: %w", err)
	}
	floats := uint64(vertexCount) * 3
	if floats > uint64(^uint32(0)) {
		return nil, fmt.Errorf("vertex count %d overflows the position buffer", vertexCount)
	}
	vertices, err := eng.Memory().Float32s(vertexPtr, uint32(floats))
	if err != nil {
		return nil, fmt.Errorf("failed to copy vertex positions: %w", err)
	}

	indexCount, err := eng.IndexCount(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query index count: %w", err)
	}
	indexPtr, err := eng.Indices(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query indices: %w", err)
	}
	indices, err := eng.Memory().Uint32s(indexPtr, indexCount)
	if err != nil {
		return nil, fmt.Errorf("failed to copy indices: %w", err)
	}

	m := &mesh.Mesh{Vertices: vertices, Indices: indices}
	if b.config.ValidateMesh {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}

	fields := []zap.Field{
		zap.Stringer("handle", raw),
		zap.Int("vertices", m.VertexCount()),
		zap.Int("triangles", m.TriangleCount()),
	}
	if cm, ok := eng.Memory().(interface{ Cache() *memview.Cache }); ok {
		fields = append(fields, zap.Int("view_rebuilds", cm.Cache().Rebuilds()))
	}
	b.logger.Debug("Mesh extracted", fields...)

	return m, nil
}
