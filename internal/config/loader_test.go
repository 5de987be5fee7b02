package config

import (
	"os"
	"path/filepath"
	"testing"

	"modelcore/pkg/types"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: :9999
models_dir: /tmp
memory_ceiling_mb: 123
emergency_threshold: 0.8
workers: 3
batchable_patterns: [embed, qwen]
llama:
  bin: /opt/llama-server
  gpu_layers: 99
models:
  - id: whisper-base
    category: transcription
    path: models/ggml-base.bin
    size: base
    pinned: true
preload: [whisper-base]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelsDir != "/tmp" || cfg.MemoryCeilingMB != 123 || cfg.EmergencyThreshold != 0.8 || cfg.Workers != 3 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.BatchablePatterns) != 2 || cfg.BatchablePatterns[1] != "qwen" {
		t.Fatalf("patterns: %v", cfg.BatchablePatterns)
	}
	if cfg.Llama.Bin != "/opt/llama-server" || cfg.Llama.GPULayers != 99 {
		t.Fatalf("llama: %+v", cfg.Llama)
	}
	if len(cfg.Models) != 1 || !cfg.Models[0].Pinned || cfg.Models[0].Category != types.CategoryTranscription {
		t.Fatalf("models: %+v", cfg.Models)
	}
	if want := filepath.Join(d, "models", "ggml-base.bin"); cfg.Models[0].Path != want {
		t.Fatalf("path not resolved against config dir: %q want %q", cfg.Models[0].Path, want)
	}
	if len(cfg.Preload) != 1 || cfg.Preload[0] != "whisper-base" {
		t.Fatalf("preload: %v", cfg.Preload)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","models_dir":"/m","memory_ceiling_mb":42,"queue_capacity":8,"cors_enabled":true,"cors_origins":["http://a"]}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.ModelsDir != "/m" || cfg.MemoryCeilingMB != 42 || cfg.QueueCapacity != 8 || !cfg.CORSEnabled || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", `addr=":8081"
models_dir="store"
memory_ceiling_mb=9
accelerator_slots=2

[whisper]
bin="whisper-server"
threads=4

[[models]]
id="nomic-embed-text"
category="text-embedding"
path="/models/nomic.gguf"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.MemoryCeilingMB != 9 || cfg.AcceleratorSlots != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.ModelsDir != filepath.Join(d, "store") {
		t.Fatalf("models_dir: %q", cfg.ModelsDir)
	}
	if cfg.Whisper.Bin != "whisper-server" || cfg.Whisper.Threads != 4 {
		t.Fatalf("whisper: %+v", cfg.Whisper)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].Path != "/models/nomic.gguf" {
		t.Fatalf("models: %+v", cfg.Models)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
