package wasmtest

import (
	"github.com/woxQAQ/objparser-bridge/api/abi"
)

// DestroyCountExport reports how many times the destroy export ran.
const DestroyCountExport = "destroyed_count"

// LogMessage is what the stub engine logs through the host on every parse.
const LogMessage = "parsed"

// Triangle is the mesh every accepted parse produces.
var Triangle = struct {
	Positions []float32
	Indices   []uint32
}{
	Positions: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
	Indices:   []uint32{0, 1, 2},
}

type engineOptions struct {
	skip         map[string]bool
	singleMalloc bool
	noMemory     bool
}

// EngineOption customizes EngineModule.
type EngineOption func(*engineOptions)

// WithoutExport leaves the named function export out of the module.
func WithoutExport(name string) EngineOption {
	return func(o *engineOptions) { o.skip[name] = true }
}

// WithSingleParamMalloc exports the allocator as malloc(size) instead of
// malloc(size, align).
func WithSingleParamMalloc() EngineOption {
	return func(o *engineOptions) { o.singleMalloc = true }
}

// WithoutMemoryExport keeps linear memory private to the module.
func WithoutMemoryExport() EngineOption {
	return func(o *engineOptions) { o.noMemory = true }
}

const (
	heapBase   = 1024
	logOffset  = 16
	resultSize = 64

	// result layout: header then positions then indices
	offVertexCount = 0
	offVertexPtr   = 4
	offIndexCount  = 8
	offIndexPtr    = 12
	offPositions   = 16
	offIndices     = offPositions + 9*4
)

// EngineModule builds a stub OBJ engine exporting abi.WasmSymbols.
//
// Parsing ignores the text beyond its first byte. Input that is empty or
// does not start with 'v' is rejected with a null handle. Anything else
// yields Triangle. Each accepted parse grows memory by one page, so views
// taken before the call go stale.
func EngineModule(opts ...EngineOption) []byte {
	o := &engineOptions{skip: map[string]bool{}}
	for _, opt := range opts {
		opt(o)
	}

	sym := abi.WasmSymbols
	b := NewBuilder()

	tLog := b.Type([]byte{I32, I32, I32}, nil)
	tBinary := b.Type([]byte{I32, I32}, []byte{I32})
	tUnary := b.Type([]byte{I32}, []byte{I32})
	tDestroy := b.Type([]byte{I32}, nil)
	tCounter := b.Type(nil, []byte{I32})

	logFn := b.ImportFunc(abi.HostModule, abi.HostLogMessage, tLog)

	b.Memory(1)
	heap := b.Global(heapBase)
	destroyed := b.Global(0)
	b.Data(logOffset, []byte(LogMessage))

	// malloc: bump allocator, 8-byte aligned
	mallocType := tBinary
	if o.singleMalloc {
		mallocType = tUnary
	}
	malloc := b.Func(mallocType, 0, NewCode().
		GlobalGet(heap).
		GlobalGet(heap).LocalGet(0).I32Add().
		I32Const(7).I32Add().
		I32Const(-8).I32And().
		GlobalSet(heap))

	parse := NewCode().
		LocalGet(1).I32Eqz().If().I32Const(0).Return().End().
		LocalGet(0).I32Load8U(0).I32Const('v').I32Ne().If().I32Const(0).Return().End().
		I32Const(1).MemoryGrow().Drop().
		I32Const(1).I32Const(logOffset).I32Const(int32(len(LogMessage))).Call(logFn).
		I32Const(resultSize)
	if !o.singleMalloc {
		parse.I32Const(8)
	}
	parse.Call(malloc).LocalSet(2).
		LocalGet(2).I32Const(3).I32Store(offVertexCount).
		LocalGet(2).LocalGet(2).I32Const(offPositions).I32Add().I32Store(offVertexPtr).
		LocalGet(2).I32Const(int32(len(Triangle.Indices))).I32Store(offIndexCount).
		LocalGet(2).LocalGet(2).I32Const(offIndices).I32Add().I32Store(offIndexPtr)
	for i, v := range Triangle.Positions {
		parse.LocalGet(2).F32Const(v).F32Store(uint32(offPositions + 4*i))
	}
	for i, v := range Triangle.Indices {
		parse.LocalGet(2).I32Const(int32(v)).I32Store(uint32(offIndices + 4*i))
	}
	parse.LocalGet(2)
	parseFn := b.Func(tBinary, 1, parse)

	field := func(off uint32) *Code {
		return NewCode().LocalGet(0).I32Load(off)
	}
	vertexCount := b.Func(tUnary, 0, field(offVertexCount))
	vertexPtr := b.Func(tUnary, 0, field(offVertexPtr))
	indexCount := b.Func(tUnary, 0, field(offIndexCount))
	indexPtr := b.Func(tUnary, 0, field(offIndexPtr))

	destroy := b.Func(tDestroy, 0, NewCode().
		GlobalGet(destroyed).I32Const(1).I32Add().GlobalSet(destroyed))
	counter := b.Func(tCounter, 0, NewCode().GlobalGet(destroyed))

	if !o.noMemory {
		b.ExportMemory("memory")
	}
	for _, e := range []struct {
		name  string
		index uint32
	}{
		{sym.Allocate, malloc},
		{sym.Parse, parseFn},
		{sym.VertexCount, vertexCount},
		{sym.VertexPositions, vertexPtr},
		{sym.IndexCount, indexCount},
		{sym.Indices, indexPtr},
		{sym.Destroy, destroy},
		{DestroyCountExport, counter},
	} {
		if o.skip[e.name] {
			continue
		}
		b.ExportFunc(e.name, e.index)
	}

	return b.Bytes()
}

// MemoryOnlyModule is a module that exports one page of memory and nothing
// else.
func MemoryOnlyModule() []byte {
	b := NewBuilder()
	b.Memory(1)
	b.ExportMemory("memory")
	return b.Bytes()
}
