// Package bridge drives a foreign OBJ engine: it stages input in engine
// memory, wraps parse results in owning handles and copies meshes out.
//
// One Bridge owns one engine. Every call sequence against the engine runs
// under the bridge lock, so a Bridge is safe for concurrent use.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/mesh"
	"go.uber.org/zap"
)

// Loader produces a ready engine. It runs once, in the background.
type Loader func(ctx context.Context) (engine.Engine, error)

// Config holds bridge configuration.
type Config struct {
	// Reject meshes whose indices fall outside the vertex range.
	ValidateMesh bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ValidateMesh: true}
}

// Bridge serializes access to one engine.
type Bridge struct {
	gate   *Gate
	engine engine.Engine // set before gate opens

	config Config
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// New wraps an engine that is ready now.
func New(eng engine.Engine, config Config, logger *zap.Logger) *Bridge {
	b := newBridge(config, logger)
	b.engine = eng
	b.gate.Open(nil)
	return b
}

// Start loads the engine in the background and returns immediately. Calls
// made before the load finishes wait for it.
func Start(ctx context.Context, load Loader, config Config, logger *zap.Logger) *Bridge {
	b := newBridge(config, logger)
	go func() {
		start := time.Now()
		eng, err := load(ctx)
		if err != nil {
			b.logger.Error("Engine load failed", zap.Error(err))
			b.gate.Open(&EngineLoadError{Err: err})
			return
		}
		b.engine = eng
		b.logger.Info("Engine ready", zap.Duration("duration", time.Since(start)))
		b.gate.Open(nil)
	}()
	return b
}

func newBridge(config Config, logger *zap.Logger) *Bridge {
	return &Bridge{
		gate:   NewGate(),
		config: config,
		logger: logger.With(zap.String("component", "bridge")),
	}
}

// Ready is closed once the engine finished loading, successfully or not.
func (b *Bridge) Ready() <-chan struct{} {
	return b.gate.Done()
}

// Wait blocks until the engine is ready and returns the load error, if any.
func (b *Bridge) Wait(ctx context.Context) error {
	return b.gate.Wait(ctx)
}

// Engine returns the engine once it is ready.
func (b *Bridge) Engine(ctx context.Context) (engine.Engine, error) {
	if err := b.gate.Wait(ctx); err != nil {
		return nil, err
	}
	return b.engine, nil
}

// Parse runs the engine over data and returns an owned mesh. A nil mesh
// with a nil error means the engine rejected the input.
func (b *Bridge) Parse(ctx context.Context, data []byte) (*mesh.Mesh, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, &InputTooLargeError{Size: len(data)}
	}
	return b.run(ctx, "bytes", len(data), func(eng engine.Engine) (engine.Handle, error) {
		return stage(ctx, eng, data)
	})
}

// ParseFile parses the OBJ file at path. Engines that read files themselves
// get the path; for the others the file is read here.
func (b *Bridge) ParseFile(ctx context.Context, path string) (*mesh.Mesh, error) {
	if err := b.gate.Wait(ctx); err != nil {
		return nil, err
	}

	pp, ok := b.engine.(engine.PathParser)
	if !ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return b.Parse(ctx, data)
	}

	size := -1
	if fi, err := os.Stat(path); err == nil {
		size = int(fi.Size())
	}
	return b.run(ctx, path, size, func(engine.Engine) (engine.Handle, error) {
		return pp.ParsePath(ctx, path)
	})
}

// Acquire parses data and hands out the owning handle, or nil when the
// engine rejected the input. The caller must Close a non-nil handle.
func (b *Bridge) Acquire(ctx context.Context, data []byte) (*Handle, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, &InputTooLargeError{Size: len(data)}
	}
	if err := b.gate.Wait(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	raw, err := stage(ctx, b.engine, data)
	if err != nil {
		return nil, err
	}
	if raw.IsNull() {
		return nil, nil
	}
	return &Handle{bridge: b, raw: raw}, nil
}

// run parses under the bridge lock and extracts the result. The handle is
// destroyed on every path out, panics included.
// sizeField drops the input size when it is unknown.
func sizeField(size int) zap.Field {
	if size < 0 {
		return zap.Skip()
	}
	return zap.Int("size_bytes", size)
}

func (b *Bridge) run(ctx context.Context, source string, size int, parse func(engine.Engine) (engine.Handle, error)) (m *mesh.Mesh, err error) {
	if err := b.gate.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	raw, err := parse(b.engine)
	if err != nil {
		return nil, err
	}
	if raw.IsNull() {
		b.logger.Info("No mesh produced",
			zap.String("source", source),
			sizeField(size),
		)
		return nil, nil
	}

	h := &Handle{bridge: b, raw: raw}
	defer func() {
		if relErr := h.release(ctx); relErr != nil {
			if err == nil {
				m, err = nil, fmt.Errorf("failed to destroy handle %v: %w", raw, relErr)
				return
			}
			b.logger.Warn("Failed to destroy handle",
				zap.Stringer("handle", raw),
				zap.Error(relErr),
			)
		}
	}()

	m, err = b.extract(ctx, raw)
	if err != nil {
		return nil, err
	}

	b.logger.Info("OBJ parsed",
		zap.String("source", source),
		sizeField(size),
		zap.Int("vertices", m.VertexCount()),
		zap.Int("triangles", m.TriangleCount()),
		zap.Duration("duration", time.Since(start)),
	)
	return m, nil
}

// stage copies data into engine memory and runs the parser on it.
func stage(ctx context.Context, eng engine.Engine, data []byte) (engine.Handle, error) {
	size := uint32(len(data))
	addr, err := eng.Allocate(ctx, size)
	if err != nil {
		return engine.NullHandle, fmt.Errorf("failed to allocate %d bytes: %w", size, err)
	}
	if err := eng.Memory().Write(addr, data); err != nil {
		return engine.NullHandle, fmt.Errorf("failed to write input: %w", err)
	}
	raw, err := eng.Parse(ctx, addr, size)
	if err != nil {
		return engine.NullHandle, fmt.Errorf("failed to parse: %w", err)
	}
	return raw, nil
}

// Close waits for the engine and releases it. Handles still open must not
// be used afterwards.
func (b *Bridge) Close(ctx context.Context) error {
	if err := b.gate.Wait(ctx); err != nil {
		var loadErr *EngineLoadError
		if errors.As(err, &loadErr) {
			return nil
		}
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.engine.Close(ctx)
}
