package catalog

import (
	"time"

	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
)

// Entry is a discovered engine: its manifest plus discovery metadata.
type Entry struct {
	Manifest *Manifest

	// LoadedAt is when the manifest was read.
	LoadedAt time.Time
}

// Name returns the engine name.
func (e *Entry) Name() string {
	return e.Manifest.Name
}

// Kind returns the engine backend.
func (e *Entry) Kind() engine.Kind {
	return e.Manifest.Kind
}

// Version returns the engine version.
func (e *Entry) Version() string {
	return e.Manifest.Version
}

// Path returns the path of the engine binary.
func (e *Entry) Path() string {
	return e.Manifest.FilePath()
}

// Symbols returns the entry points to bind.
func (e *Entry) Symbols() abi.Symbols {
	return e.Manifest.ResolvedSymbols()
}
