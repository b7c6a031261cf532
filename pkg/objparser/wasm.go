package objparser

import (
	"context"
	"errors"
	"fmt"

	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/bridge"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/wasm"
	"go.uber.org/zap"
)

// WasmOptions configures a WebAssembly engine.
type WasmOptions struct {
	// Path of the .wasm file. Ignored when Module is set.
	Path string
	// Module holds the engine bytes directly.
	Module []byte
	// Name identifies Module in logs and the compile cache.
	Name string

	// Symbols overrides export names; empty fields use abi.WasmSymbols.
	Symbols abi.Symbols

	MemoryPages  uint32
	CacheDir     string
	Debug        bool
	MaxInstances int

	// SkipValidation hands out meshes without index range checks.
	SkipValidation bool
}

// WasmParser runs the engine as a WebAssembly module.
type WasmParser struct {
	core
	runtime *wasm.Runtime
	logger  *zap.Logger
}

var _ Parser = (*WasmParser)(nil)

// OpenWasm starts compiling and instantiating the engine and returns
// without waiting. Parse calls made before the engine is ready wait for it.
func OpenWasm(ctx context.Context, opts WasmOptions, logger *zap.Logger) (*WasmParser, error) {
	if opts.Path == "" && len(opts.Module) == 0 {
		return nil, errors.New("wasm engine needs a path or module bytes")
	}

	cfg := wasm.DefaultRuntimeConfig()
	if opts.MemoryPages > 0 {
		cfg.MemoryPages = opts.MemoryPages
	}
	if opts.MaxInstances > 0 {
		cfg.MaxInstances = opts.MaxInstances
	}
	cfg.CacheDir = opts.CacheDir
	cfg.DebugEnabled = opts.Debug

	runtime, err := wasm.NewRuntime(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	symbols := opts.Symbols.Merge(abi.WasmSymbols)
	source := moduleSource(opts)

	load := func(ctx context.Context) (engine.Engine, error) {
		compiled, err := wasm.NewModuleLoader(runtime, logger).LoadModule(ctx, source)
		if err != nil {
			return nil, err
		}
		instances := wasm.NewInstanceManager(runtime, wasm.NewHostFunctions(logger), logger)
		return wasm.OpenEngine(ctx, instances, compiled, symbols, logger)
	}

	config := bridge.DefaultConfig()
	config.ValidateMesh = !opts.SkipValidation

	// The load outlives the caller's deadline.
	b := bridge.Start(context.WithoutCancel(ctx), load, config, logger)

	return &WasmParser{
		core:    core{bridge: b},
		runtime: runtime,
		logger:  logger,
	}, nil
}

func moduleSource(opts WasmOptions) wasm.ModuleSource {
	if len(opts.Module) > 0 {
		name := opts.Name
		if name == "" {
			name = "objparser"
		}
		return &wasm.MemoryModuleSource{ModuleName: name, Data: opts.Module}
	}
	return &wasm.FileModuleSource{Path: opts.Path}
}

// Parse parses OBJ text into typed arrays, or nil when the engine rejected
// the input.
func (p *WasmParser) Parse(ctx context.Context, data []byte) (*Arrays, error) {
	return p.ParseArrays(ctx, data)
}

// Close releases the engine and the runtime hosting it. When ctx ends
// before the engine finished loading, the load keeps the runtime and
// shutdown completes in the background once it settles.
func (p *WasmParser) Close(ctx context.Context) error {
	err := p.bridge.Close(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		go p.closeAfterLoad()
		return err
	}

	if rerr := p.closeRuntime(ctx); err == nil {
		err = rerr
	}
	return err
}

func (p *WasmParser) closeAfterLoad() {
	<-p.Ready()

	ctx := context.Background()
	if err := p.bridge.Close(ctx); err != nil {
		p.logger.Warn("Failed to close engine after load", zap.Error(err))
	}
	p.closeRuntime(ctx)
}

func (p *WasmParser) closeRuntime(ctx context.Context) error {
	err := p.runtime.Close(ctx)
	if err != nil {
		p.logger.Error("Failed to shutdown Wasm runtime", zap.Error(err))
	}
	return err
}
