package native

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by Open on platforms without dlopen.
var ErrUnsupported = errors.New("shared library engines are not supported on this platform")

// LibraryLoadError occurs when the shared library cannot be opened
type LibraryLoadError struct {
	Path string
	Err  error
}

func (e *LibraryLoadError) Error() string {
	return fmt.Sprintf("failed to load engine library '%s': %v", e.Path, e.Err)
}

func (e *LibraryLoadError) Unwrap() error {
	return e.Err
}

// SymbolNotFoundError occurs when the library lacks a required export
type SymbolNotFoundError struct {
	Library string
	Symbol  string
	Err     error
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol '%s' not found in '%s': %v", e.Symbol, e.Library, e.Err)
}

func (e *SymbolNotFoundError) Unwrap() error {
	return e.Err
}

// NullPointerError occurs when the engine returns a null buffer for a
// non-empty count
type NullPointerError struct {
	Count uint32
}

func (e *NullPointerError) Error() string {
	return fmt.Sprintf("engine returned a null buffer for %d elements", e.Count)
}

// UnstagedAddressError occurs when writing to an address that is not the
// start of a staging buffer
type UnstagedAddressError struct {
	Address uint64
}

func (e *UnstagedAddressError) Error() string {
	return fmt.Sprintf("address 0x%x is not a staging buffer", e.Address)
}
