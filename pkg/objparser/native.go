package objparser

import (
	"context"
	"errors"
	"unsafe"

	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/bridge"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/native"
	"go.uber.org/zap"
)

// Vector3 is one vertex position.
type Vector3 struct {
	X, Y, Z float32
}

// IndexFormat is the index width a renderer should allocate.
type IndexFormat int

const (
	IndexFormat16 IndexFormat = 16
	IndexFormat32 IndexFormat = 32
)

// MaxIndex16 is the largest vertex count 16-bit indices can address.
const MaxIndex16 = 65535

// NativeMesh is a parsed mesh in the shape game engines consume.
type NativeMesh struct {
	Positions []Vector3
	Indices   []int32
}

// IndexFormat picks 32-bit indices once the vertex count exceeds what
// 16-bit indices can address.
func (m *NativeMesh) IndexFormat() IndexFormat {
	if len(m.Positions) > MaxIndex16 {
		return IndexFormat32
	}
	return IndexFormat16
}

// Arrays returns the mesh as flat arrays without copying.
func (m *NativeMesh) Arrays() *Arrays {
	a := &Arrays{}
	if len(m.Positions) > 0 {
		a.Vertices = unsafe.Slice((*float32)(unsafe.Pointer(&m.Positions[0])), len(m.Positions)*3)
	}
	if len(m.Indices) > 0 {
		a.Indices = unsafe.Slice((*uint32)(unsafe.Pointer(&m.Indices[0])), len(m.Indices))
	}
	return a
}

// nativeMesh reinterprets owned arrays in place. Validated indices are below
// the vertex count and fit in int32. With SkipValidation an index above
// math.MaxInt32 keeps its bits and reads back negative.
func nativeMesh(a *Arrays) *NativeMesh {
	if a == nil {
		return nil
	}
	m := &NativeMesh{Positions: []Vector3{}, Indices: []int32{}}
	if n := len(a.Vertices) / 3; n > 0 {
		m.Positions = unsafe.Slice((*Vector3)(unsafe.Pointer(&a.Vertices[0])), n)
	}
	if len(a.Indices) > 0 {
		m.Indices = unsafe.Slice((*int32)(unsafe.Pointer(&a.Indices[0])), len(a.Indices))
	}
	return m
}

// NativeOptions configures a shared-library engine.
type NativeOptions struct {
	// Path of the shared library.
	Path string

	// Symbols overrides export names; empty fields use abi.NativeSymbols.
	Symbols abi.Symbols

	// SkipValidation hands out meshes without index range checks.
	SkipValidation bool
}

// NativeParser runs the engine as a shared library loaded into the process.
type NativeParser struct {
	core
}

var _ Parser = (*NativeParser)(nil)

// OpenNative loads the shared library. The engine is ready on return.
func OpenNative(ctx context.Context, opts NativeOptions, logger *zap.Logger) (*NativeParser, error) {
	if opts.Path == "" {
		return nil, errors.New("native engine needs a library path")
	}

	eng, err := native.Open(opts.Path, opts.Symbols.Merge(abi.NativeSymbols), logger)
	if err != nil {
		return nil, err
	}
	return newNativeParser(eng, opts, logger), nil
}

func newNativeParser(eng engine.Engine, opts NativeOptions, logger *zap.Logger) *NativeParser {
	config := bridge.DefaultConfig()
	config.ValidateMesh = !opts.SkipValidation

	return &NativeParser{core: core{bridge: bridge.New(eng, config, logger)}}
}

// Parse parses OBJ text, or returns nil when the engine rejected it.
func (p *NativeParser) Parse(ctx context.Context, data []byte) (*NativeMesh, error) {
	a, err := p.ParseArrays(ctx, data)
	if err != nil {
		return nil, err
	}
	return nativeMesh(a), nil
}

// ParseFile hands path to the engine, which reads the file itself when it
// exports a path entry point.
func (p *NativeParser) ParseFile(ctx context.Context, path string) (*NativeMesh, error) {
	a, err := p.ParseFileArrays(ctx, path)
	if err != nil {
		return nil, err
	}
	return nativeMesh(a), nil
}

// Close unloads the library.
func (p *NativeParser) Close(ctx context.Context) error {
	return p.bridge.Close(ctx)
}
