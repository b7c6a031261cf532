//go:build !(darwin || linux)

package native

import (
	"github.com/woxQAQ/objparser-bridge/api/abi"
	"github.com/woxQAQ/objparser-bridge/internal/engine"
	"go.uber.org/zap"
)

// Engine is unavailable on this platform.
type Engine struct {
	engine.Engine
}

// Open always fails with ErrUnsupported.
func Open(path string, _ abi.Symbols, _ *zap.Logger) (*Engine, error) {
	return nil, &LibraryLoadError{Path: path, Err: ErrUnsupported}
}
