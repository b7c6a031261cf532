package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/objparser-bridge/api/abi"
	"go.uber.org/zap"
)

// InstanceManager creates and manages engine module instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl

	mu sync.Mutex
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctionsImpl, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, one is generated).
	InstanceID string

	// Exported functions to resolve and cache.
	Functions []string
}

// Instance represents an instantiated engine module.
type Instance struct {
	module  api.Module
	runtime *Runtime

	ID        string
	Name      string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports map[string]api.Function

	closeOnce sync.Once
}

// Instantiate creates a new instance from a compiled module.
// The host module is instantiated on first use so engines can import it.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}

	m.logger.Info("Instantiating engine module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	if err := m.ensureHostModule(ctx); err != nil {
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	// Reactor-style engines export _initialize; command-style _start is
	// never run. The wasm start section always runs.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions("_initialize")

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	exports, err := cacheExportedFunctions(module, config.ModuleName, config.Functions)
	if err != nil {
		module.Close(ctx)
		return nil, err
	}

	instance := &Instance{
		module:    module,
		runtime:   m.runtime,
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		exports:   exports,
	}

	if err := m.runtime.trackInstance(instance); err != nil {
		module.Close(ctx)
		return nil, err
	}

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
	)

	return instance, nil
}

// Function returns a cached exported function.
func (i *Instance) Function(name string) (api.Function, error) {
	fn, ok := i.exports[name]
	if !ok {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}
	return fn, nil
}

// Memory returns the instance's exported linear memory, or nil.
func (i *Instance) Memory() api.Memory {
	return i.module.Memory()
}

// Close closes the instance and releases resources.
// Safe to call multiple times.
func (i *Instance) Close(ctx context.Context) error {
	var err error
	i.closeOnce.Do(func() {
		i.runtime.untrackInstance(i.ID)
		err = i.module.Close(ctx)
	})
	return err
}

// cacheExportedFunctions resolves the requested exports once.
func cacheExportedFunctions(module api.Module, moduleName string, names []string) (map[string]api.Function, error) {
	exports := make(map[string]api.Function, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		fn := module.ExportedFunction(name)
		if fn == nil {
			return nil, &FunctionNotFoundError{ModuleName: moduleName, FunctionName: name}
		}
		exports[name] = fn
	}
	return exports, nil
}

// ensureHostModule instantiates the host import module once per runtime.
func (m *InstanceManager) ensureHostModule(ctx context.Context) error {
	m.runtime.hostOnce.Do(func() {
		impl := m.hostFuncs

		_, m.runtime.hostErr = m.runtime.runtime.NewHostModuleBuilder(abi.HostModule).
			NewFunctionBuilder().
			WithFunc(impl.logMessage).
			WithParameterNames("level", "ptr", "length").
			Export(abi.HostLogMessage).
			Instantiate(ctx)
	})
	return m.runtime.hostErr
}

var instanceSeq atomic.Uint64

// generateInstanceID generates a unique instance ID.
func generateInstanceID() string {
	return fmt.Sprintf("engine-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}
