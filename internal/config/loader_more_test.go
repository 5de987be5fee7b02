package config

import (
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "models_dir": }`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "addr=:8080\nmodels_dir\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("MODELCORE_ADDR", ":1234")
	t.Setenv("MODELCORE_MEMORY_CEILING_MB", "2048")
	t.Setenv("MODELCORE_EMERGENCY_THRESHOLD", "0.75")
	t.Setenv("MODELCORE_BATCHABLE_PATTERNS", "embed,bge")
	t.Setenv("MODELCORE_PRELOAD", "a,b")
	t.Setenv("MODELCORE_CORS_ENABLED", "true")
	t.Setenv("MODELCORE_LLAMA_BIN", "/usr/bin/llama-server")
	t.Setenv("MODELCORE_LLAMA_EXTRA_ARGS", "--flash-attn --mlock")
	t.Setenv("MODELCORE_WHISPER_PORT_START", "9000")
	t.Setenv("MODELCORE_SIDECAR_IMAGE_EMBEDDING_COMMAND", "python3 clip_server.py")

	cfg := Config{Addr: ":8080", MemoryCeilingMB: 1, Workers: 5}
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("env: %v", err)
	}
	if cfg.Addr != ":1234" || cfg.MemoryCeilingMB != 2048 || cfg.EmergencyThreshold != 0.75 || !cfg.CORSEnabled {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Workers != 5 {
		t.Fatalf("unset variable overwrote workers: %d", cfg.Workers)
	}
	if len(cfg.BatchablePatterns) != 2 || cfg.BatchablePatterns[1] != "bge" || len(cfg.Preload) != 2 {
		t.Fatalf("lists: %v %v", cfg.BatchablePatterns, cfg.Preload)
	}
	if cfg.Llama.Bin != "/usr/bin/llama-server" || len(cfg.Llama.ExtraArgs) != 2 {
		t.Fatalf("llama: %+v", cfg.Llama)
	}
	if cfg.Whisper.PortStart != 9000 {
		t.Fatalf("whisper: %+v", cfg.Whisper)
	}
	if len(cfg.Sidecar.ImageEmbeddingCommand) != 2 || cfg.Sidecar.ImageEmbeddingCommand[1] != "clip_server.py" {
		t.Fatalf("sidecar: %+v", cfg.Sidecar)
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("MODELCORE_WORKERS", "many")
	var cfg Config
	if err := ApplyEnv(&cfg); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestResolve_FileThenEnv(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9000\nworkers: 2\n")
	t.Setenv("MODELCORE_WORKERS", "7")
	cfg, err := Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Workers != 7 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestResolve_NoFile(t *testing.T) {
	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cfg.ApplyDefaults()
	if cfg.Addr != DefaultAddr {
		t.Fatalf("addr: %q", cfg.Addr)
	}
}
