package native

import (
	"runtime"
	"unsafe"

	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"github.com/woxQAQ/objparser-bridge/internal/memview"
)

// Memory is the process address space as seen through a shared library.
//
// The library has no allocator export, so input is staged in pinned Go
// buffers and passed by address. Result buffers live in the library's own
// heap and are copied out element by element.
type Memory struct {
	staged map[engine.Address]*staging
}

type staging struct {
	buf    []byte
	pinner runtime.Pinner
}

var _ engine.Memory = (*Memory)(nil)

// NewMemory returns a memory with no staged buffers.
func NewMemory() *Memory {
	return &Memory{staged: make(map[engine.Address]*staging)}
}

// Stage pins a new buffer of size bytes and returns its address. Empty
// buffers still get one byte so the address is never null.
func (m *Memory) Stage(size uint32) engine.Address {
	buf := make([]byte, max(size, 1))
	base := &buf[0]

	s := &staging{buf: buf[:size]}
	s.pinner.Pin(base)

	addr := engine.Address(uintptr(unsafe.Pointer(base)))
	m.staged[addr] = s
	return addr
}

// Staged returns the staging buffer starting at addr.
func (m *Memory) Staged(addr engine.Address) ([]byte, bool) {
	s, ok := m.staged[addr]
	if !ok {
		return nil, false
	}
	return s.buf, true
}

// Release unpins and forgets the staging buffer at addr.
func (m *Memory) Release(addr engine.Address) {
	if s, ok := m.staged[addr]; ok {
		s.pinner.Unpin()
		delete(m.staged, addr)
	}
}

// ReleaseAll unpins every staging buffer.
func (m *Memory) ReleaseAll() {
	for addr := range m.staged {
		m.Release(addr)
	}
}

// Write copies data into the staging buffer starting at addr.
func (m *Memory) Write(addr engine.Address, data []byte) error {
	buf, ok := m.Staged(addr)
	if !ok {
		return &UnstagedAddressError{Address: uint64(addr)}
	}
	if len(data) > len(buf) {
		return &memview.OutOfBoundsError{Start: 0, Count: len(data), Len: len(buf)}
	}
	copy(buf, data)
	return nil
}

// Float32s copies n float32 values from a library buffer at addr.
func (m *Memory) Float32s(addr engine.Address, n uint32) ([]float32, error) {
	if err := checkBuffer(addr, n); err != nil {
		return nil, err
	}
	if n == 0 {
		return []float32{}, nil
	}
	out := make([]float32, n)
	copy(out, unsafe.Slice((*float32)(pointer(addr)), n))
	return out, nil
}

// Uint32s copies n uint32 values from a library buffer at addr.
func (m *Memory) Uint32s(addr engine.Address, n uint32) ([]uint32, error) {
	if err := checkBuffer(addr, n); err != nil {
		return nil, err
	}
	if n == 0 {
		return []uint32{}, nil
	}
	out := make([]uint32, n)
	copy(out, unsafe.Slice((*uint32)(pointer(addr)), n))
	return out, nil
}

func checkBuffer(addr engine.Address, n uint32) error {
	if n == 0 {
		return nil
	}
	if addr == 0 {
		return &NullPointerError{Count: n}
	}
	if addr%4 != 0 {
		return &memview.AlignmentError{Address: uint64(addr), Align: 4}
	}
	return nil
}

// pointer turns a library address back into a pointer. The memory behind
// it belongs to the library, not the Go heap.
func pointer(addr engine.Address) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr))
}
