package types

import (
	"fmt"
	"strings"
)

// Category identifies the family of a model and selects its loader.
type Category string

const (
	CategoryLanguage       Category = "llm"
	CategoryTranscription  Category = "transcription"
	CategoryTextEmbedding  Category = "text-embedding"
	CategoryImageEmbedding Category = "image-embedding"
)

// MaxContextSize bounds the context window a descriptor may request.
const MaxContextSize = 1 << 24

// Categories lists every known category in a stable order.
var Categories = []Category{CategoryLanguage, CategoryTranscription, CategoryTextEmbedding, CategoryImageEmbedding}

// ParseCategory accepts the canonical names plus a few common aliases.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "llm", "language", "language-model", "large-language-model":
		return CategoryLanguage, nil
	case "transcription", "speech", "speech-transcription", "whisper":
		return CategoryTranscription, nil
	case "text-embedding", "embedding", "embeddings":
		return CategoryTextEmbedding, nil
	case "image-embedding", "clip":
		return CategoryImageEmbedding, nil
	}
	return "", fmt.Errorf("unknown model category %q", s)
}

// ModelDescriptor identifies a requestable model and how to load it.
// Treat it as immutable once handed to the registry.
type ModelDescriptor struct {
	// Unique model identifier.
	// example: llama-3.1-8b-instruct-q4
	ID string `json:"id" yaml:"id" toml:"id" example:"llama-3.1-8b-instruct-q4"`
	// Model family; selects the backend launcher.
	// example: llm
	Category Category `json:"category" yaml:"category" toml:"category" example:"llm"`
	// Location of the model file or directory.
	// example: /models/llama-3.1-8b-instruct.Q4_K_M.gguf
	Path string `json:"path" yaml:"path" toml:"path" example:"/models/llama-3.1-8b-instruct.Q4_K_M.gguf"`
	// Quantization scheme (Q4_K_M, Q5_0, Q8_0, F16, ...).
	// example: Q4_K_M
	Quantization string `json:"quantization,omitempty" yaml:"quantization" toml:"quantization" example:"Q4_K_M"`
	// Declared size token: a parameter count for language models (7b, 1.5B)
	// or a size tier for fixed-size categories (tiny, base, small, medium, large).
	// example: 8b
	Size string `json:"size,omitempty" yaml:"size" toml:"size" example:"8b"`
	// Requested context window in tokens (language models).
	// example: 4096
	ContextSize int `json:"context_size,omitempty" yaml:"context_size" toml:"context_size" example:"4096"`
	// Preferred batch size hint passed to the backend.
	// example: 512
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size" toml:"batch_size" example:"512"`
	// Pinned models are never chosen for eviction.
	Pinned bool `json:"pinned,omitempty" yaml:"pinned" toml:"pinned"`
}

// Normalize validates the descriptor and returns a copy with a canonical
// category and trimmed identifier.
func (d ModelDescriptor) Normalize() (ModelDescriptor, error) {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return d, fmt.Errorf("descriptor: id is required")
	}
	cat, err := ParseCategory(string(d.Category))
	if err != nil {
		return d, fmt.Errorf("descriptor %s: %w", d.ID, err)
	}
	d.Category = cat
	if d.ContextSize < 0 || d.BatchSize < 0 {
		return d, fmt.Errorf("descriptor %s: negative size hint", d.ID)
	}
	if d.ContextSize > MaxContextSize {
		return d, fmt.Errorf("descriptor %s: context size %d exceeds %d", d.ID, d.ContextSize, MaxContextSize)
	}
	return d, nil
}
