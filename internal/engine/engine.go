// Package engine defines the narrow surface through which the host talks to a
// foreign OBJ parsing engine, regardless of whether that engine is a
// WebAssembly module or a native shared library.
package engine

import (
	"context"
	"fmt"
)

// Address is a byte address inside the engine's memory.
type Address uint64

// Handle is an opaque token for a parse result owned by the engine.
type Handle uint64

// NullHandle is returned by Parse when the engine rejected the input.
// Nothing was allocated for it and it must never be destroyed.
const NullHandle Handle = 0

// IsNull reports whether h is the parse-failed sentinel.
func (h Handle) IsNull() bool {
	return h == NullHandle
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uint64(h))
}

// Engine is the set of foreign entry points the host consumes.
//
// Implementations are not safe for concurrent use. Callers serialize every
// call sequence against one engine instance.
type Engine interface {
	// Allocate reserves size bytes in engine-visible memory.
	Allocate(ctx context.Context, size uint32) (Address, error)

	// Parse runs the foreign parser over size bytes at addr. A NullHandle
	// with a nil error means the input was rejected.
	Parse(ctx context.Context, addr Address, size uint32) (Handle, error)

	VertexCount(ctx context.Context, h Handle) (uint32, error)
	VertexPositions(ctx context.Context, h Handle) (Address, error)
	IndexCount(ctx context.Context, h Handle) (uint32, error)
	Indices(ctx context.Context, h Handle) (Address, error)

	// Destroy releases everything the engine holds for h.
	Destroy(ctx context.Context, h Handle) error

	// Memory gives access to the engine's memory. Any call above may
	// reallocate it; readers must not keep views across calls.
	Memory() Memory

	// Close releases the engine itself.
	Close(ctx context.Context) error
}

// PathParser is implemented by engines that can open files themselves.
type PathParser interface {
	ParsePath(ctx context.Context, path string) (Handle, error)
}

// Memory is the engine's memory as seen by the host.
type Memory interface {
	// Write copies data into engine memory at addr.
	Write(addr Address, data []byte) error

	// Float32s returns an owned copy of n float32 values starting at addr.
	Float32s(addr Address, n uint32) ([]float32, error)

	// Uint32s returns an owned copy of n uint32 values starting at addr.
	Uint32s(addr Address, n uint32) ([]uint32, error)
}

// Kind names an engine backend.
type Kind string

const (
	KindWasm   Kind = "wasm"
	KindNative Kind = "native"
)

// Valid reports whether k is a known backend.
func (k Kind) Valid() bool {
	return k == KindWasm || k == KindNative
}
