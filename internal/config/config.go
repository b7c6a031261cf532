package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. OBJBRIDGE_WASM_MEMORY_PAGES.
const EnvPrefix = "OBJBRIDGE"

type Config struct {
	LogLevel    string        `mapstructure:"log_level"`
	EnginePaths []string      `mapstructure:"engine_paths"`
	Engine      string        `mapstructure:"engine"`
	Wasm        WasmConfig    `mapstructure:"wasm"`
	Bridge      BridgeConfig  `mapstructure:"bridge"`
	Preview     PreviewConfig `mapstructure:"preview"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
}

// BridgeConfig controls the handle lifecycle layer.
type BridgeConfig struct {
	// Check extracted meshes before handing them out.
	ValidateMesh bool `mapstructure:"validate_mesh"`
	// How long callers wait for a background engine load.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// PreviewConfig controls thumbnail rendering.
type PreviewConfig struct {
	Size        int `mapstructure:"size"`
	Supersample int `mapstructure:"supersample"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("engine_paths", []string{"./engines"})
	v.SetDefault("engine", "")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "./build/wasm-cache")
	v.SetDefault("wasm.max_instances", 16)

	v.SetDefault("bridge.validate_mesh", true)
	v.SetDefault("bridge.ready_timeout", 10*time.Second)

	v.SetDefault("preview.size", 256)
	v.SetDefault("preview.supersample", 2)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
