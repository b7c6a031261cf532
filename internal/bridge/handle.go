package bridge

import (
	"context"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/mesh"
)

// Handle owns one engine parse result. Close destroys it exactly once.
//
//	h, err := b.Acquire(ctx, data)
//	if err != nil || h == nil {
//		return err
//	}
//	defer h.Close(ctx)
//
// A nil *Handle is valid and Close on it does nothing.
type Handle struct {
	bridge   *Bridge
	raw      engine.Handle
	released bool
}

// Raw returns the engine's token for the result.
func (h *Handle) Raw() engine.Handle {
	return h.raw
}

// Extract copies the mesh out of engine memory.
func (h *Handle) Extract(ctx context.Context) (*mesh.Mesh, error) {
	h.bridge.mu.Lock()
	defer h.bridge.mu.Unlock()

	if h.released {
		return nil, ErrHandleReleased
	}
	if h.bridge.closed {
		return nil, ErrClosed
	}
	return h.bridge.extract(ctx, h.raw)
}

// Close destroys the engine result. Later calls return ErrHandleReleased.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.bridge.mu.Lock()
	defer h.bridge.mu.Unlock()
	return h.release(ctx)
}

// release must be called with the bridge lock held. The handle counts as
// released even when Destroy fails or panics; it is never destroyed twice.
// After the bridge is closed the engine is gone along with the result, so
// nothing is destroyed.
func (h *Handle) release(ctx context.Context) error {
	if h.released {
		return ErrHandleReleased
	}
	h.released = true
	if h.bridge.closed {
		return ErrClosed
	}
	return h.bridge.engine.Destroy(ctx, h.raw)
}
