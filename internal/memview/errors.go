package memview

import "fmt"

// OutOfBoundsError occurs when a read or write falls outside linear memory.
type OutOfBoundsError struct {
	Start int
	Count int
	Len   int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("memory range out of bounds (start=%d, count=%d, len=%d)",
		e.Start, e.Count, e.Len)
}

// AlignmentError occurs when a typed read starts at a misaligned address.
type AlignmentError struct {
	Address uint64
	Align   uint64
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("address %d is not %d-byte aligned", e.Address, e.Align)
}
