// Package wasmtest assembles small WebAssembly binaries for tests.
//
// Only the handful of sections and instructions the engine tests need are
// supported. Every value type is i32 except for f32 constants stored to
// memory.
package wasmtest

import (
	"encoding/binary"
	"math"
)

// Value types.
const (
	I32 byte = 0x7f
	F32 byte = 0x7d
)

const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10
	secData     = 11

	exportFunc   = 0x00
	exportMemory = 0x02
)

type funcType struct {
	params  []byte
	results []byte
}

type importFunc struct {
	module string
	name   string
	typ    uint32
}

type function struct {
	typ    uint32
	locals uint32
	code   []byte
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type dataSegment struct {
	offset int32
	data   []byte
}

// Builder collects module parts and encodes them into a binary.
type Builder struct {
	types   []funcType
	imports []importFunc
	funcs   []function
	globals []int32
	exports []export
	data    []dataSegment

	memory   bool
	minPages uint32
}

// NewBuilder returns an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Type registers a function signature and returns its index.
func (b *Builder) Type(params, results []byte) uint32 {
	for i, t := range b.types {
		if string(t.params) == string(params) && string(t.results) == string(results) {
			return uint32(i)
		}
	}
	b.types = append(b.types, funcType{params: params, results: results})
	return uint32(len(b.types) - 1)
}

// ImportFunc imports module.name and returns its function index. Imports
// must be added before any Func.
func (b *Builder) ImportFunc(module, name string, typ uint32) uint32 {
	if len(b.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	b.imports = append(b.imports, importFunc{module: module, name: name, typ: typ})
	return uint32(len(b.imports) - 1)
}

// Func adds a function body with extra i32 locals and returns its index.
// The closing end opcode is appended by the builder.
func (b *Builder) Func(typ uint32, locals uint32, code *Code) uint32 {
	b.funcs = append(b.funcs, function{typ: typ, locals: locals, code: code.Bytes()})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Memory declares the module's linear memory with no maximum.
func (b *Builder) Memory(minPages uint32) {
	b.memory = true
	b.minPages = minPages
}

// Global adds a mutable i32 global and returns its index.
func (b *Builder) Global(init int32) uint32 {
	b.globals = append(b.globals, init)
	return uint32(len(b.globals) - 1)
}

// ExportFunc exports function index under name.
func (b *Builder) ExportFunc(name string, index uint32) {
	b.exports = append(b.exports, export{name: name, kind: exportFunc, index: index})
}

// ExportMemory exports memory 0 under name.
func (b *Builder) ExportMemory(name string) {
	b.exports = append(b.exports, export{name: name, kind: exportMemory})
}

// Data places bytes at offset in memory 0 when the module is instantiated.
func (b *Builder) Data(offset int32, data []byte) {
	b.data = append(b.data, dataSegment{offset: offset, data: data})
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.types) > 0 {
		var p []byte
		p = appendU32(p, uint32(len(b.types)))
		for _, t := range b.types {
			p = append(p, 0x60)
			p = appendU32(p, uint32(len(t.params)))
			p = append(p, t.params...)
			p = appendU32(p, uint32(len(t.results)))
			p = append(p, t.results...)
		}
		out = appendSection(out, secType, p)
	}

	if len(b.imports) > 0 {
		var p []byte
		p = appendU32(p, uint32(len(b.imports)))
		for _, im := range b.imports {
			p = appendName(p, im.module)
			p = appendName(p, im.name)
			p = append(p, exportFunc)
			p = appendU32(p, im.typ)
		}
		out = appendSection(out, secImport, p)
	}

	if len(b.funcs) > 0 {
		var p []byte
		p = appendU32(p, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			p = appendU32(p, f.typ)
		}
		out = appendSection(out, secFunction, p)
	}

	if b.memory {
		p := []byte{0x01, 0x00}
		p = appendU32(p, b.minPages)
		out = appendSection(out, secMemory, p)
	}

	if len(b.globals) > 0 {
		var p []byte
		p = appendU32(p, uint32(len(b.globals)))
		for _, g := range b.globals {
			p = append(p, I32, 0x01, 0x41)
			p = appendS32(p, g)
			p = append(p, 0x0b)
		}
		out = appendSection(out, secGlobal, p)
	}

	if len(b.exports) > 0 {
		var p []byte
		p = appendU32(p, uint32(len(b.exports)))
		for _, e := range b.exports {
			p = appendName(p, e.name)
			p = append(p, e.kind)
			p = appendU32(p, e.index)
		}
		out = appendSection(out, secExport, p)
	}

	if len(b.funcs) > 0 {
		var p []byte
		p = appendU32(p, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body []byte
			if f.locals > 0 {
				body = append(body, 0x01)
				body = appendU32(body, f.locals)
				body = append(body, I32)
			} else {
				body = append(body, 0x00)
			}
			body = append(body, f.code...)
			body = append(body, 0x0b)
			p = appendU32(p, uint32(len(body)))
			p = append(p, body...)
		}
		out = appendSection(out, secCode, p)
	}

	if len(b.data) > 0 {
		var p []byte
		p = appendU32(p, uint32(len(b.data)))
		for _, d := range b.data {
			p = append(p, 0x00, 0x41)
			p = appendS32(p, d.offset)
			p = append(p, 0x0b)
			p = appendU32(p, uint32(len(d.data)))
			p = append(p, d.data...)
		}
		out = appendSection(out, secData, p)
	}

	return out
}

// Code is an instruction sequence. Methods append one instruction each.
type Code struct {
	buf []byte
}

// NewCode returns an empty instruction sequence.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.buf
}

func (c *Code) op(b ...byte) *Code {
	c.buf = append(c.buf, b...)
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { return c.index(0x20, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.index(0x21, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.index(0x23, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.index(0x24, i) }
func (c *Code) Call(i uint32) *Code      { return c.index(0x10, i) }

func (c *Code) I32Const(v int32) *Code {
	c.op(0x41)
	c.buf = appendS32(c.buf, v)
	return c
}

func (c *Code) F32Const(v float32) *Code {
	c.op(0x43)
	c.buf = binary.LittleEndian.AppendUint32(c.buf, math.Float32bits(v))
	return c
}

func (c *Code) I32Add() *Code { return c.op(0x6a) }
func (c *Code) I32And() *Code { return c.op(0x71) }
func (c *Code) I32Eqz() *Code { return c.op(0x45) }
func (c *Code) I32Ne() *Code  { return c.op(0x47) }
func (c *Code) Drop() *Code   { return c.op(0x1a) }
func (c *Code) Return() *Code { return c.op(0x0f) }

// If opens a block with no result. Close it with End.
func (c *Code) If() *Code  { return c.op(0x04, 0x40) }
func (c *Code) End() *Code { return c.op(0x0b) }

// MemoryGrow grows memory 0 by the page count on the stack.
func (c *Code) MemoryGrow() *Code { return c.op(0x40, 0x00) }

func (c *Code) I32Load(offset uint32) *Code   { return c.memarg(0x28, 2, offset) }
func (c *Code) I32Load8U(offset uint32) *Code { return c.memarg(0x2d, 0, offset) }
func (c *Code) I32Store(offset uint32) *Code  { return c.memarg(0x36, 2, offset) }
func (c *Code) F32Store(offset uint32) *Code  { return c.memarg(0x38, 2, offset) }

func (c *Code) index(op byte, i uint32) *Code {
	c.op(op)
	c.buf = appendU32(c.buf, i)
	return c
}

func (c *Code) memarg(op byte, align, offset uint32) *Code {
	c.op(op)
	c.buf = appendU32(c.buf, align)
	c.buf = appendU32(c.buf, offset)
	return c
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(payload)))
	return append(out, payload...)
}

func appendName(out []byte, s string) []byte {
	out = appendU32(out, uint32(len(s)))
	return append(out, s...)
}

// appendU32 appends v as unsigned LEB128.
func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

// appendS32 appends v as signed LEB128.
func appendS32(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
