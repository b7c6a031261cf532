// Package memview keeps typed views over a foreign engine's linear memory.
//
// Linear memory may be reallocated by the engine whenever it grows. A view
// taken before the growth still points at the old buffer, so every accessor
// here re-checks the buffer identity before handing a view out.
package memview

import (
	"encoding/binary"
	"math"
)

// Region is a source of the engine's current linear memory.
type Region interface {
	// Buffer returns the whole linear memory as it is right now.
	Buffer() []byte
}

// Cache lazily builds views over a Region and rebuilds them when the
// region's backing buffer changes.
type Cache struct {
	region Region

	bytes  []byte
	floats Float32View
	uints  Uint32View

	rebuilds int
}

// NewCache creates a view cache over region.
func NewCache(region Region) *Cache {
	return &Cache{region: region}
}

// ByteView returns a byte view over the current memory.
func (c *Cache) ByteView() []byte {
	c.refresh()
	return c.bytes
}

// FloatView returns a float32 view over the current memory.
func (c *Cache) FloatView() Float32View {
	c.refresh()
	return c.floats
}

// Uint32View returns a uint32 view over the current memory.
func (c *Cache) Uint32View() Uint32View {
	c.refresh()
	return c.uints
}

// Rebuilds returns how many times the views were recreated.
func (c *Cache) Rebuilds() int {
	return c.rebuilds
}

func (c *Cache) refresh() {
	buf := c.region.Buffer()
	if c.bytes != nil && sameBuffer(c.bytes, buf) {
		return
	}
	c.bytes = buf
	c.floats = Float32View{buf: buf}
	c.uints = Uint32View{buf: buf}
	c.rebuilds++
}

// sameBuffer compares backing array identity and length, not contents.
func sameBuffer(a, b []byte) bool {
	if len(a) != len(b) || cap(a) != cap(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// Float32View reads little-endian float32 values in 4-byte units.
type Float32View struct {
	buf []byte
}

// Len returns the number of whole float32 slots in the view.
func (v Float32View) Len() int {
	return len(v.buf) / 4
}

// At returns the float32 at slot i.
func (v Float32View) At(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v.buf[i*4:]))
}

// Copy returns an owned copy of n values starting at slot start.
func (v Float32View) Copy(start, n int) ([]float32, error) {
	if err := checkRange(start, n, v.Len()); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	src := v.buf[start*4 : (start+n)*4]
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out, nil
}

// Uint32View reads little-endian uint32 values in 4-byte units.
type Uint32View struct {
	buf []byte
}

// Len returns the number of whole uint32 slots in the view.
func (v Uint32View) Len() int {
	return len(v.buf) / 4
}

// At returns the uint32 at slot i.
func (v Uint32View) At(i int) uint32 {
	return binary.LittleEndian.Uint32(v.buf[i*4:])
}

// Copy returns an owned copy of n values starting at slot start.
func (v Uint32View) Copy(start, n int) ([]uint32, error) {
	if err := checkRange(start, n, v.Len()); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	src := v.buf[start*4 : (start+n)*4]
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(src[i*4:])
	}
	return out, nil
}

func checkRange(start, n, length int) error {
	if start < 0 || n < 0 || start > length || n > length-start {
		return &OutOfBoundsError{Start: start, Count: n, Len: length}
	}
	return nil
}
