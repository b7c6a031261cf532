//go:build darwin || linux

package native

import (
	"context"
	"os"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"go.uber.org/zap"
)

// Engine drives an OBJ parser shared library through purego. No cgo is
// involved; symbols are resolved with dlsym and bound to Go functions.
type Engine struct {
	path   string
	lib    uintptr
	memory *Memory
	logger *zap.Logger

	parseObj        func(data *byte, size uint32) uintptr
	parseObjPath    func(path *byte, size uint32) uintptr
	vertexCount     func(h uintptr) uint32
	vertexPositions func(h uintptr) uintptr
	indexCount      func(h uintptr) uint32
	indices         func(h uintptr) uintptr
	destroy         func(h uintptr)

	closeOnce sync.Once
}

var (
	_ engine.Engine     = (*Engine)(nil)
	_ engine.PathParser = (*Engine)(nil)
)

// Open loads the library at path and binds the entry points named in
// symbols. The path parser is optional; every other entry point is required.
func Open(path string, symbols abi.Symbols, logger *zap.Logger) (*Engine, error) {
	logger = logger.With(
		zap.String("component", "native-engine"),
		zap.String("library", path),
	)

	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, &LibraryLoadError{Path: path, Err: err}
	}

	e := &Engine{
		path:   path,
		lib:    lib,
		memory: NewMemory(),
		logger: logger,
	}

	required := []struct {
		fptr any
		name string
	}{
		{&e.parseObj, symbols.Parse},
		{&e.vertexCount, symbols.VertexCount},
		{&e.vertexPositions, symbols.VertexPositions},
		{&e.indexCount, symbols.IndexCount},
		{&e.indices, symbols.Indices},
		{&e.destroy, symbols.Destroy},
	}
	for _, r := range required {
		if err := e.bind(r.fptr, r.name); err != nil {
			purego.Dlclose(lib)
			return nil, err
		}
	}

	if symbols.ParsePath != "" {
		if err := e.bind(&e.parseObjPath, symbols.ParsePath); err != nil {
			logger.Debug("Path parser not exported, reading files on the host",
				zap.String("symbol", symbols.ParsePath),
			)
			e.parseObjPath = nil
		}
	}

	logger.Info("Engine library loaded",
		zap.Bool("path_parser", e.parseObjPath != nil),
	)

	return e, nil
}

func (e *Engine) bind(fptr any, name string) error {
	sym, err := purego.Dlsym(e.lib, name)
	if err != nil {
		return &SymbolNotFoundError{Library: e.path, Symbol: name, Err: err}
	}
	purego.RegisterFunc(fptr, sym)
	return nil
}

// Allocate stages size bytes of pinned host memory for the next Parse.
func (e *Engine) Allocate(_ context.Context, size uint32) (engine.Address, error) {
	return e.memory.Stage(size), nil
}

// Parse hands the staged buffer at addr to the library and releases it.
func (e *Engine) Parse(_ context.Context, addr engine.Address, size uint32) (engine.Handle, error) {
	buf, ok := e.memory.Staged(addr)
	if !ok {
		return engine.NullHandle, &UnstagedAddressError{Address: uint64(addr)}
	}
	defer e.memory.Release(addr)

	if uint64(size) > uint64(len(buf)) {
		size = uint32(len(buf))
	}
	h := e.parseObj(unsafe.SliceData(buf), size)
	return engine.Handle(h), nil
}

// ParsePath lets the library open the file itself. Libraries without a
// path parser get the file contents instead.
func (e *Engine) ParsePath(ctx context.Context, path string) (engine.Handle, error) {
	if e.parseObjPath == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return engine.NullHandle, err
		}
		addr := e.memory.Stage(uint32(len(data)))
		if err := e.memory.Write(addr, data); err != nil {
			e.memory.Release(addr)
			return engine.NullHandle, err
		}
		return e.Parse(ctx, addr, uint32(len(data)))
	}

	if path == "" {
		return engine.NullHandle, nil
	}
	b := []byte(path)
	h := e.parseObjPath(&b[0], uint32(len(b)))
	return engine.Handle(h), nil
}

func (e *Engine) VertexCount(_ context.Context, h engine.Handle) (uint32, error) {
	return e.vertexCount(uintptr(h)), nil
}

func (e *Engine) VertexPositions(_ context.Context, h engine.Handle) (engine.Address, error) {
	return engine.Address(e.vertexPositions(uintptr(h))), nil
}

func (e *Engine) IndexCount(_ context.Context, h engine.Handle) (uint32, error) {
	return e.indexCount(uintptr(h)), nil
}

func (e *Engine) Indices(_ context.Context, h engine.Handle) (engine.Address, error) {
	return engine.Address(e.indices(uintptr(h))), nil
}

// Destroy frees the library-side parse result.
func (e *Engine) Destroy(_ context.Context, h engine.Handle) error {
	e.destroy(uintptr(h))
	return nil
}

func (e *Engine) Memory() engine.Memory {
	return e.memory
}

// Close releases staging buffers and unloads the library.
func (e *Engine) Close(context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.memory.ReleaseAll()
		if closeErr := purego.Dlclose(e.lib); closeErr != nil {
			err = &LibraryLoadError{Path: e.path, Err: closeErr}
		}
		e.logger.Info("Engine library unloaded")
	})
	return err
}
