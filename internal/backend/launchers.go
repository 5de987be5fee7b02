package backend

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"modelcore/internal/common/fsutil"
	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// InProcessConfig configures the in-process llama.cpp engine.
type InProcessConfig struct {
	CtxSize   int
	GPULayers int
	Threads   int
}

// Config selects and configures one launcher per category.
type Config struct {
	Llama   LlamaServerConfig
	Whisper WhisperConfig
	// TextEmbedding, when its command is set, serves text embeddings through
	// a sidecar instead of llama-server.
	TextEmbedding  SidecarConfig
	ImageEmbedding SidecarConfig
	// InProcess loads language models into this process instead of
	// spawning llama-server.
	InProcess       bool
	InProcessConfig InProcessConfig
	Logger          *zerolog.Logger
}

// Launchers builds the category to launcher table handed to the registry.
// Image embedding has no launcher unless a sidecar command is configured.
func Launchers(cfg Config) map[types.Category]registry.Launcher {
	log := loggerOrNop(cfg.Logger).With().Str("component", "backend").Logger()
	cfg.Llama.Logger = &log
	cfg.Whisper.Logger = &log
	cfg.TextEmbedding.Logger = &log
	cfg.ImageEmbedding.Logger = &log

	llamaServer := NewLlamaServerLauncher(cfg.Llama)
	out := map[types.Category]registry.Launcher{
		types.CategoryLanguage:      llamaServer,
		types.CategoryTranscription: NewWhisperLauncher(cfg.Whisper),
		types.CategoryTextEmbedding: llamaServer,
	}
	if cfg.InProcess {
		out[types.CategoryLanguage] = NewInProcessLlamaLauncher(cfg.InProcessConfig)
	}
	if len(cfg.TextEmbedding.Command) > 0 {
		out[types.CategoryTextEmbedding] = NewSidecarLauncher(cfg.TextEmbedding)
	}
	if len(cfg.ImageEmbedding.Command) > 0 {
		out[types.CategoryImageEmbedding] = NewSidecarLauncher(cfg.ImageEmbedding)
	}
	return out
}

// checkModelFile rejects descriptors whose model file is missing before any
// process is spawned.
func checkModelFile(backend, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%s: model path is empty", backend)
	}
	if !fsutil.PathExists(path) {
		return fmt.Errorf("%s: model file not found: %s", backend, path)
	}
	return nil
}
