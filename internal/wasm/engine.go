package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/memview"
	"go.uber.org/zap"
)

// Engine drives an OBJ parser compiled to WebAssembly. It implements
// engine.Engine over one module instance.
type Engine struct {
	instance *Instance
	symbols  abi.Symbols
	memory   *memview.Memory
	logger   *zap.Logger

	allocate        api.Function
	parse           api.Function
	vertexCount     api.Function
	vertexPositions api.Function
	indexCount      api.Function
	indices         api.Function
	destroy         api.Function

	// newer wasm-bindgen allocators take (size, align)
	allocWithAlign bool
}

var _ engine.Engine = (*Engine)(nil)

// OpenEngine checks a compiled module's exports, instantiates it and wraps
// the instance as an engine.
func OpenEngine(ctx context.Context, instances *InstanceManager, compiled *CompiledModule, symbols abi.Symbols, logger *zap.Logger) (*Engine, error) {
	if err := CheckExports(compiled, symbols); err != nil {
		return nil, err
	}

	instance, err := instances.Instantiate(ctx, &InstanceConfig{
		ModuleName: compiled.Name,
		Functions:  requiredFunctions(symbols),
	})
	if err != nil {
		return nil, err
	}

	eng, err := NewEngine(instance, symbols, logger)
	if err != nil {
		instance.Close(ctx)
		return nil, err
	}
	return eng, nil
}

// NewEngine wraps an instance whose exports follow symbols.
func NewEngine(instance *Instance, symbols abi.Symbols, logger *zap.Logger) (*Engine, error) {
	if instance.Memory() == nil {
		return nil, &MemoryNotExportedError{ModuleName: instance.Name}
	}

	e := &Engine{
		instance: instance,
		symbols:  symbols,
		memory:   memview.NewMemory(NewMemory(instance.module)),
		logger: logger.With(
			zap.String("component", "wasm-engine"),
			zap.String("instance_id", instance.ID),
		),
	}

	for _, f := range []struct {
		dst  *api.Function
		name string
	}{
		{&e.allocate, symbols.Allocate},
		{&e.parse, symbols.Parse},
		{&e.vertexCount, symbols.VertexCount},
		{&e.vertexPositions, symbols.VertexPositions},
		{&e.indexCount, symbols.IndexCount},
		{&e.indices, symbols.Indices},
		{&e.destroy, symbols.Destroy},
	} {
		fn, err := instance.Function(f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = fn
	}

	e.allocWithAlign = len(e.allocate.Definition().ParamTypes()) == 2

	return e, nil
}

// Allocate reserves size bytes through the engine's allocator export.
func (e *Engine) Allocate(ctx context.Context, size uint32) (engine.Address, error) {
	params := []uint64{api.EncodeU32(size)}
	if e.allocWithAlign {
		params = append(params, api.EncodeU32(1))
	}
	ret, err := e.call(ctx, e.allocate, e.symbols.Allocate, params...)
	if err != nil {
		return 0, err
	}
	addr := api.DecodeU32(ret)
	if addr == 0 && size > 0 {
		return 0, &AllocationError{Size: size}
	}
	return engine.Address(addr), nil
}

// Parse runs the engine's parser over size bytes at addr.
func (e *Engine) Parse(ctx context.Context, addr engine.Address, size uint32) (engine.Handle, error) {
	ret, err := e.call(ctx, e.parse, e.symbols.Parse, api.EncodeU32(uint32(addr)), api.EncodeU32(size))
	if err != nil {
		return engine.NullHandle, err
	}
	return engine.Handle(api.DecodeU32(ret)), nil
}

func (e *Engine) VertexCount(ctx context.Context, h engine.Handle) (uint32, error) {
	return e.handleQuery(ctx, e.vertexCount, e.symbols.VertexCount, h)
}

func (e *Engine) VertexPositions(ctx context.Context, h engine.Handle) (engine.Address, error) {
	ptr, err := e.handleQuery(ctx, e.vertexPositions, e.symbols.VertexPositions, h)
	return engine.Address(ptr), err
}

func (e *Engine) IndexCount(ctx context.Context, h engine.Handle) (uint32, error) {
	return e.handleQuery(ctx, e.indexCount, e.symbols.IndexCount, h)
}

func (e *Engine) Indices(ctx context.Context, h engine.Handle) (engine.Address, error) {
	ptr, err := e.handleQuery(ctx, e.indices, e.symbols.Indices, h)
	return engine.Address(ptr), err
}

// Destroy frees the engine-side parse result.
func (e *Engine) Destroy(ctx context.Context, h engine.Handle) error {
	_, err := e.call(ctx, e.destroy, e.symbols.Destroy, api.EncodeU32(uint32(h)))
	return err
}

// Memory returns the engine's memory through the view cache.
func (e *Engine) Memory() engine.Memory {
	return e.memory
}

// ViewRebuilds reports how often the memory views were recreated.
func (e *Engine) ViewRebuilds() int {
	return e.memory.Cache().Rebuilds()
}

// Close closes the underlying instance.
func (e *Engine) Close(ctx context.Context) error {
	return e.instance.Close(ctx)
}

func (e *Engine) handleQuery(ctx context.Context, fn api.Function, name string, h engine.Handle) (uint32, error) {
	ret, err := e.call(ctx, fn, name, api.EncodeU32(uint32(h)))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(ret), nil
}

func (e *Engine) call(ctx context.Context, fn api.Function, name string, params ...uint64) (uint64, error) {
	results, err := fn.Call(ctx, params...)
	if err != nil {
		e.logger.Error("Engine call failed",
			zap.String("function", name),
			zap.Error(err),
		)
		return 0, &CallError{FunctionName: name, Err: err}
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}
