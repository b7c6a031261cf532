package wasm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/wasm/wasmtest"
	"go.uber.org/zap/zaptest"
)

// TestLoadModuleFromMemory tests loading a minimal module from memory.
func TestLoadModuleFromMemory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	// Empty Wasm 1.0 module.
	wasmBytes := []byte{
		0x00, 0x61, 0x73, 0x6d, // Magic number: \0asm
		0x01, 0x00, 0x00, 0x00, // Version: 1
	}

	module, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	if module == nil {
		t.Fatal("Module is nil")
	}

	if module.Name != "test-module" {
		t.Errorf("Module name = %s, want 'test-module'", module.Name)
	}

	if module.SizeBytes != int64(len(wasmBytes)) {
		t.Errorf("SizeBytes = %d, want %d", module.SizeBytes, len(wasmBytes))
	}

	// Loading again should hit the cache.
	module2, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}

	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

// TestModuleLoaderFileSource tests the FileModuleSource.
func TestModuleLoaderFileSource(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	wasmFile := filepath.Join(t.TempDir(), "engine.wasm")
	if err := os.WriteFile(wasmFile, wasmtest.EngineModule(), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	module, err := loader.LoadModuleFromFile(ctx, wasmFile)
	if err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}

	if module.Source != wasmFile {
		t.Errorf("Source = %s, want %s", module.Source, wasmFile)
	}

	if _, err := loader.LoadModuleFromFile(ctx, filepath.Join(t.TempDir(), "missing.wasm")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadModuleInvalidBytes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	_, err = loader.LoadModuleFromMemory(ctx, "garbage", []byte("not a wasm module"))
	var compErr *CompilationError
	if !errors.As(err, &compErr) {
		t.Fatalf("Expected CompilationError, got %v", err)
	}
	if compErr.ModuleName != "garbage" {
		t.Errorf("ModuleName = %s, want garbage", compErr.ModuleName)
	}
}

func TestCheckExports(t *testing.T) {
	tests := []struct {
		name     string
		wasm     []byte
		wantFunc string
		wantMem  bool
	}{
		{
			name: "complete engine",
			wasm: wasmtest.EngineModule(),
		},
		{
			name:     "missing index getter",
			wasm:     wasmtest.EngineModule(wasmtest.WithoutExport(abi.WasmSymbols.Indices)),
			wantFunc: abi.WasmSymbols.Indices,
		},
		{
			name:     "missing allocator",
			wasm:     wasmtest.EngineModule(wasmtest.WithoutExport(abi.WasmSymbols.Allocate)),
			wantFunc: abi.WasmSymbols.Allocate,
		},
		{
			name:    "memory not exported",
			wasm:    wasmtest.EngineModule(wasmtest.WithoutMemoryExport()),
			wantMem: true,
		},
		{
			name:     "memory only",
			wasm:     wasmtest.MemoryOnlyModule(),
			wantFunc: abi.WasmSymbols.Allocate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := zaptest.NewLogger(t)
			ctx := context.Background()

			runtime, err := NewRuntime(ctx, logger, nil)
			if err != nil {
				t.Fatal(err)
			}
			defer runtime.Close(ctx)

			compiled, err := NewModuleLoader(runtime, logger).LoadModuleFromMemory(ctx, tt.name, tt.wasm)
			if err != nil {
				t.Fatalf("Failed to load module: %v", err)
			}

			err = CheckExports(compiled, abi.WasmSymbols)

			switch {
			case tt.wantMem:
				var memErr *MemoryNotExportedError
				if !errors.As(err, &memErr) {
					t.Errorf("Expected MemoryNotExportedError, got %v", err)
				}
			case tt.wantFunc != "":
				var fnErr *FunctionNotFoundError
				if !errors.As(err, &fnErr) {
					t.Fatalf("Expected FunctionNotFoundError, got %v", err)
				}
				if fnErr.FunctionName != tt.wantFunc {
					t.Errorf("FunctionName = %s, want %s", fnErr.FunctionName, tt.wantFunc)
				}
			default:
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
			}
		})
	}
}

// TestHostFunctions tests host function creation.
func TestHostFunctions(t *testing.T) {
	logger := zaptest.NewLogger(t)

	hostFuncs := NewHostFunctions(logger)
	if hostFuncs == nil {
		t.Fatal("HostFunctionsImpl is nil")
	}

	if hostFuncs.logger == nil {
		t.Error("Logger not initialized")
	}
}

// TestMemoryHelpers tests the linear memory wrapper.
func TestMemoryHelpers(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromMemory(ctx, "memory-test", wasmtest.MemoryOnlyModule()); err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger), logger)

	instance, err := instanceMgr.Instantiate(ctx, &InstanceConfig{
		ModuleName: "memory-test",
	})
	if err != nil {
		t.Fatalf("Failed to instantiate: %v", err)
	}
	defer instance.Close(ctx)

	mem := NewMemory(instance.module)

	if got := len(mem.Buffer()); got != 65536 {
		t.Errorf("Buffer length = %d, want one page", got)
	}

	if !instance.Memory().Write(8, []byte("obj\x00trailing")) {
		t.Fatal("Failed to write to memory")
	}

	s, ok := mem.ReadString(8, 12)
	if !ok {
		t.Fatal("ReadString failed")
	}
	if s != "obj" {
		t.Errorf("ReadString = %q, want %q", s, "obj")
	}

	if _, ok := mem.ReadString(65530, 16); ok {
		t.Error("Out of range read should fail")
	}
}
