// Package enginetest provides an in-process OBJ engine for tests.
//
// The engine keeps its own growable linear memory and speaks the same
// allocate/parse/query/destroy protocol as the foreign engines. Faults can be
// injected per entry point, and every destroy is counted.
package enginetest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/memview"
	"github.com/woxQAQ/objparser-bridge/internal/mesh"
)

// Op names an engine entry point.
type Op string

const (
	OpAllocate        Op = "allocate"
	OpParse           Op = "parse"
	OpParsePath       Op = "parse_path"
	OpVertexCount     Op = "vertex_count"
	OpVertexPositions Op = "vertex_positions"
	OpIndexCount      Op = "index_count"
	OpIndices         Op = "indices"
	OpDestroy         Op = "destroy"
)

const (
	pageSize = 64 * 1024
	heapBase = 1024
)

var (
	// ErrUnknownHandle is returned for handles the engine never issued or
	// has already destroyed.
	ErrUnknownHandle = errors.New("enginetest: unknown handle")

	// ErrClosed is returned by every entry point after Close.
	ErrClosed = errors.New("enginetest: engine closed")
)

type result struct {
	vertexCount uint32
	vertexPtr   uint32
	indexCount  uint32
	indexPtr    uint32
}

type fault struct {
	err   error
	panic any
}

// Engine is an in-process engine.Engine backed by mesh.DecodeOBJ.
type Engine struct {
	mem    []byte
	memory *memview.Memory
	heap   uint32

	results    map[engine.Handle]*result
	nextHandle engine.Handle
	destroyed  map[engine.Handle]int

	faults map[Op]fault
	calls  []Op
	closed bool
}

var (
	_ engine.Engine     = (*Engine)(nil)
	_ engine.PathParser = (*Engine)(nil)
)

// New creates an engine with one page of memory.
func New() *Engine {
	e := &Engine{
		mem:        make([]byte, pageSize),
		heap:       heapBase,
		results:    make(map[engine.Handle]*result),
		nextHandle: 0x10,
		destroyed:  make(map[engine.Handle]int),
		faults:     make(map[Op]fault),
	}
	e.memory = memview.NewMemory(region{e})
	return e
}

type region struct{ e *Engine }

func (r region) Buffer() []byte { return r.e.mem }

// FailOn makes every later call to op return err.
func (e *Engine) FailOn(op Op, err error) {
	e.faults[op] = fault{err: err}
}

// PanicOn makes every later call to op panic with v.
func (e *Engine) PanicOn(op Op, v any) {
	e.faults[op] = fault{panic: v}
}

// Heal removes every injected fault.
func (e *Engine) Heal() {
	e.faults = make(map[Op]fault)
}

// Calls returns the entry points invoked so far, in order.
func (e *Engine) Calls() []Op {
	return append([]Op(nil), e.calls...)
}

// DestroyCount reports how many times h was passed to Destroy, including
// rejected calls.
func (e *Engine) DestroyCount(h engine.Handle) int {
	return e.destroyed[h]
}

// Destroyed reports the total number of Destroy calls.
func (e *Engine) Destroyed() int {
	n := 0
	for _, c := range e.destroyed {
		n += c
	}
	return n
}

// Live reports how many handles are issued and not yet destroyed.
func (e *Engine) Live() int {
	return len(e.results)
}

// MemoryRebuilds reports how often the memory views were recreated.
func (e *Engine) MemoryRebuilds() int {
	return e.memory.Cache().Rebuilds()
}

// Grow reallocates memory with n extra pages, moving the backing array.
func (e *Engine) Grow(pages int) {
	grown := make([]byte, len(e.mem)+pages*pageSize)
	copy(grown, e.mem)
	e.mem = grown
}

func (e *Engine) enter(op Op) error {
	e.calls = append(e.calls, op)
	if e.closed {
		return ErrClosed
	}
	f, ok := e.faults[op]
	if !ok {
		return nil
	}
	if f.panic != nil {
		panic(f.panic)
	}
	return f.err
}

// Allocate bump-allocates size bytes, growing memory as needed.
func (e *Engine) Allocate(_ context.Context, size uint32) (engine.Address, error) {
	if err := e.enter(OpAllocate); err != nil {
		return 0, err
	}
	return engine.Address(e.alloc(size)), nil
}

func (e *Engine) alloc(size uint32) uint32 {
	addr := e.heap
	end := (uint64(addr) + uint64(size) + 7) &^ 7
	if end > uint64(len(e.mem)) {
		need := end - uint64(len(e.mem))
		e.Grow(int((need + pageSize - 1) / pageSize))
	}
	e.heap = uint32(end)
	return addr
}

// Parse decodes the OBJ text at addr. Input that is empty, malformed or
// holds no vertices is rejected with a null handle. Every accepted parse
// grows memory so earlier views go stale.
func (e *Engine) Parse(_ context.Context, addr engine.Address, size uint32) (engine.Handle, error) {
	if err := e.enter(OpParse); err != nil {
		return engine.NullHandle, err
	}
	if uint64(addr)+uint64(size) > uint64(len(e.mem)) {
		return engine.NullHandle, fmt.Errorf("enginetest: input [%d, %d) outside memory", addr, uint64(addr)+uint64(size))
	}
	return e.parse(bytes.Clone(e.mem[addr : uint64(addr)+uint64(size)])), nil
}

// ParsePath reads and decodes an OBJ file. Unreadable files are rejected
// with a null handle.
func (e *Engine) ParsePath(_ context.Context, path string) (engine.Handle, error) {
	if err := e.enter(OpParsePath); err != nil {
		return engine.NullHandle, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.NullHandle, nil
	}
	return e.parse(data), nil
}

func (e *Engine) parse(data []byte) engine.Handle {
	if len(data) == 0 {
		return engine.NullHandle
	}
	m, err := mesh.DecodeOBJ(bytes.NewReader(data))
	if err != nil || m.VertexCount() == 0 {
		return engine.NullHandle
	}

	e.Grow(1)

	vptr := e.alloc(uint32(len(m.Vertices) * 4))
	for i, v := range m.Vertices {
		binary.LittleEndian.PutUint32(e.mem[vptr+uint32(i*4):], math.Float32bits(v))
	}
	iptr := e.alloc(uint32(len(m.Indices) * 4))
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(e.mem[iptr+uint32(i*4):], idx)
	}

	h := e.nextHandle
	e.nextHandle += 0x10
	e.results[h] = &result{
		vertexCount: uint32(m.VertexCount()),
		vertexPtr:   vptr,
		indexCount:  uint32(len(m.Indices)),
		indexPtr:    iptr,
	}
	return h
}

func (e *Engine) lookup(op Op, h engine.Handle) (*result, error) {
	if err := e.enter(op); err != nil {
		return nil, err
	}
	r, ok := e.results[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownHandle, h)
	}
	return r, nil
}

func (e *Engine) VertexCount(_ context.Context, h engine.Handle) (uint32, error) {
	r, err := e.lookup(OpVertexCount, h)
	if err != nil {
		return 0, err
	}
	return r.vertexCount, nil
}

func (e *Engine) VertexPositions(_ context.Context, h engine.Handle) (engine.Address, error) {
	r, err := e.lookup(OpVertexPositions, h)
	if err != nil {
		return 0, err
	}
	return engine.Address(r.vertexPtr), nil
}

func (e *Engine) IndexCount(_ context.Context, h engine.Handle) (uint32, error) {
	r, err := e.lookup(OpIndexCount, h)
	if err != nil {
		return 0, err
	}
	return r.indexCount, nil
}

func (e *Engine) Indices(_ context.Context, h engine.Handle) (engine.Address, error) {
	r, err := e.lookup(OpIndices, h)
	if err != nil {
		return 0, err
	}
	return engine.Address(r.indexPtr), nil
}

// Destroy releases h. Destroying an unknown or already destroyed handle is
// counted and reported as ErrUnknownHandle.
func (e *Engine) Destroy(_ context.Context, h engine.Handle) error {
	e.destroyed[h]++
	if err := e.enter(OpDestroy); err != nil {
		return err
	}
	if _, ok := e.results[h]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownHandle, h)
	}
	delete(e.results, h)
	return nil
}

func (e *Engine) Memory() engine.Memory {
	return e.memory
}

func (e *Engine) Close(context.Context) error {
	e.closed = true
	return nil
}

// BytesOnly hides the engine's path parser, as with engines that only
// accept in-memory input.
func BytesOnly(e *Engine) engine.Engine {
	return bytesOnly{e}
}

type bytesOnly struct {
	engine.Engine
}
