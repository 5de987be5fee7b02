// Package config loads daemon settings from a file, the environment and
// command-line flags, in that order of precedence (lowest first).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modelcore/internal/common/fsutil"
	"modelcore/pkg/types"
)

// EnvPrefix prefixes every environment variable the daemon reads.
const EnvPrefix = "MODELCORE_"

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`

	// ModelsDir is scanned for *.gguf and ggml-*.bin files at startup.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir" env:"MODELS_DIR"`
	// Models are explicitly configured descriptors; they take precedence
	// over scanned files with the same id.
	Models []types.ModelDescriptor `json:"models" yaml:"models" toml:"models"`
	// Preload lists ids loaded at startup in addition to pinned models.
	Preload []string `json:"preload" yaml:"preload" toml:"preload" env:"PRELOAD" envSeparator:","`

	MemoryCeilingMB    int64   `json:"memory_ceiling_mb" yaml:"memory_ceiling_mb" toml:"memory_ceiling_mb" env:"MEMORY_CEILING_MB"`
	EmergencyThreshold float64 `json:"emergency_threshold" yaml:"emergency_threshold" toml:"emergency_threshold" env:"EMERGENCY_THRESHOLD"`
	MonitorIntervalMs  int     `json:"monitor_interval_ms" yaml:"monitor_interval_ms" toml:"monitor_interval_ms" env:"MONITOR_INTERVAL_MS"`
	PressureBatch      int     `json:"pressure_batch" yaml:"pressure_batch" toml:"pressure_batch" env:"PRESSURE_BATCH"`
	ReadyTimeoutMs     int     `json:"ready_timeout_ms" yaml:"ready_timeout_ms" toml:"ready_timeout_ms" env:"READY_TIMEOUT_MS"`

	Workers           int      `json:"workers" yaml:"workers" toml:"workers" env:"WORKERS"`
	QueueCapacity     int      `json:"queue_capacity" yaml:"queue_capacity" toml:"queue_capacity" env:"QUEUE_CAPACITY"`
	AcceleratorSlots  int      `json:"accelerator_slots" yaml:"accelerator_slots" toml:"accelerator_slots" env:"ACCELERATOR_SLOTS"`
	GeneralSlots      int      `json:"general_slots" yaml:"general_slots" toml:"general_slots" env:"GENERAL_SLOTS"`
	IdleWaitMs        int      `json:"idle_wait_ms" yaml:"idle_wait_ms" toml:"idle_wait_ms" env:"IDLE_WAIT_MS"`
	BatchablePatterns []string `json:"batchable_patterns" yaml:"batchable_patterns" toml:"batchable_patterns" env:"BATCHABLE_PATTERNS" envSeparator:","`

	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled" env:"CORS_ENABLED"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`

	Llama   LlamaConfig   `json:"llama" yaml:"llama" toml:"llama" envPrefix:"LLAMA_"`
	Whisper WhisperConfig `json:"whisper" yaml:"whisper" toml:"whisper" envPrefix:"WHISPER_"`
	Sidecar SidecarConfig `json:"sidecar" yaml:"sidecar" toml:"sidecar" envPrefix:"SIDECAR_"`
}

// LlamaConfig configures language and text-embedding backends.
type LlamaConfig struct {
	Bin       string   `json:"bin" yaml:"bin" toml:"bin" env:"BIN"`
	Host      string   `json:"host" yaml:"host" toml:"host" env:"HOST"`
	PortStart int      `json:"port_start" yaml:"port_start" toml:"port_start" env:"PORT_START"`
	PortEnd   int      `json:"port_end" yaml:"port_end" toml:"port_end" env:"PORT_END"`
	CtxSize   int      `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size" env:"CTX_SIZE"`
	GPULayers int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers" env:"GPU_LAYERS"`
	Threads   int      `json:"threads" yaml:"threads" toml:"threads" env:"THREADS"`
	ExtraArgs []string `json:"extra_args" yaml:"extra_args" toml:"extra_args" env:"EXTRA_ARGS" envSeparator:" "`
	// InProcess loads language models with the linked llama.cpp engine
	// instead of spawning a server (requires the "llama" build tag).
	InProcess bool `json:"in_process" yaml:"in_process" toml:"in_process" env:"IN_PROCESS"`
}

// WhisperConfig configures transcription backends.
type WhisperConfig struct {
	Bin       string   `json:"bin" yaml:"bin" toml:"bin" env:"BIN"`
	Host      string   `json:"host" yaml:"host" toml:"host" env:"HOST"`
	PortStart int      `json:"port_start" yaml:"port_start" toml:"port_start" env:"PORT_START"`
	PortEnd   int      `json:"port_end" yaml:"port_end" toml:"port_end" env:"PORT_END"`
	Threads   int      `json:"threads" yaml:"threads" toml:"threads" env:"THREADS"`
	ExtraArgs []string `json:"extra_args" yaml:"extra_args" toml:"extra_args" env:"EXTRA_ARGS" envSeparator:" "`
}

// SidecarConfig configures HTTP embedding sidecars.
type SidecarConfig struct {
	TextEmbeddingCommand  []string `json:"text_embedding_command" yaml:"text_embedding_command" toml:"text_embedding_command" env:"TEXT_EMBEDDING_COMMAND" envSeparator:" "`
	ImageEmbeddingCommand []string `json:"image_embedding_command" yaml:"image_embedding_command" toml:"image_embedding_command" env:"IMAGE_EMBEDDING_COMMAND" envSeparator:" "`
	Env                   []string `json:"env" yaml:"env" toml:"env"`
	PortStart             int      `json:"port_start" yaml:"port_start" toml:"port_start" env:"PORT_START"`
	PortEnd               int      `json:"port_end" yaml:"port_end" toml:"port_end" env:"PORT_END"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml. Relative model paths are resolved
// against the file's directory.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := cfg.resolvePaths(filepath.Dir(path)); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays MODELCORE_* environment variables onto cfg. Unset
// variables leave fields untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Resolve loads path (when non-empty) and applies the environment.
func Resolve(path string) (Config, error) {
	var cfg Config
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) error {
	var err error
	if c.ModelsDir, err = fsutil.ResolvePath(base, c.ModelsDir); err != nil {
		return err
	}
	for i := range c.Models {
		if c.Models[i].Path, err = fsutil.ResolvePath(base, c.Models[i].Path); err != nil {
			return fmt.Errorf("model %s: %w", c.Models[i].ID, err)
		}
	}
	return nil
}
