package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// HostFunctionsImpl implements the functions engines may import.
type HostFunctionsImpl struct {
	logger *zap.Logger
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(logger *zap.Logger) *HostFunctionsImpl {
	return &HostFunctionsImpl{
		logger: logger.With(zap.String("component", "wasm-host")),
	}
}

// logMessage is called by engines to log messages.
// Signature: log_message(level, ptr, length)
// level: 0 = debug, 1 = info, 2 = warn, 3 = error
func (h *HostFunctionsImpl) logMessage(ctx context.Context, mod api.Module, level uint32, ptr uint32, length uint32) {
	msg, ok := NewMemory(mod).ReadString(ptr, length)
	if !ok {
		h.logger.Error("Failed to read log message from engine memory",
			zap.String("module", mod.Name()),
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	engineLogger := h.logger.With(zap.String("module", mod.Name()))
	switch level {
	case 0:
		engineLogger.Debug(msg)
	case 1:
		engineLogger.Info(msg)
	case 2:
		engineLogger.Warn(msg)
	case 3:
		engineLogger.Error(msg)
	default:
		engineLogger.Info(msg)
	}
}
