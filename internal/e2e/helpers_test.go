package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modelcore/internal/backend"
	"modelcore/internal/catalog"
	"modelcore/internal/dispatcher"
	"modelcore/internal/httpapi"
	"modelcore/internal/registry"
	"modelcore/internal/service"
	"modelcore/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with empty model
// files and returns its path.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

// fakeBackend answers every input kind without spawning anything.
type fakeBackend struct{ id string }

func (fakeBackend) AwaitReady(context.Context) error { return nil }
func (fakeBackend) Close() error                     { return nil }

func (b fakeBackend) Infer(_ context.Context, in any) (any, error) {
	switch v := in.(type) {
	case backend.CompletionInput:
		return backend.CompletionOutput{Text: b.id + ": " + v.Prompt, FinishReason: "stop"}, nil
	case backend.EmbeddingInput:
		return backend.EmbeddingOutput{Vector: []float32{float32(len(v.Text)), 1}}, nil
	case backend.TranscriptionInput:
		return backend.TranscriptionOutput{Text: fmt.Sprintf("%d bytes of audio", len(v.Audio))}, nil
	}
	return nil, fmt.Errorf("fake: %w %T", backend.ErrUnsupportedInput, in)
}

type stack struct {
	srv  *httptest.Server
	core *service.Core
	bus  *registry.Bus
}

// newStack wires catalog, registry, dispatcher and HTTP API over modelsDir
// with fake launchers. Every model is estimated at perModel bytes.
func newStack(t *testing.T, modelsDir string, ceiling, perModel int64, extra ...types.ModelDescriptor) *stack {
	t.Helper()
	scanned, err := catalog.ScanDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	launch := registry.LauncherFunc(func(_ context.Context, d types.ModelDescriptor, report func(float64)) (registry.Backend, error) {
		report(0.5)
		return fakeBackend{id: d.ID}, nil
	})
	launchers := map[types.Category]registry.Launcher{}
	for _, c := range types.Categories {
		launchers[c] = launch
	}
	bus := registry.NewBus()
	reg := registry.New(registry.Config{
		CeilingBytes: ceiling,
		Launchers:    launchers,
		Estimate:     func(types.ModelDescriptor) int64 { return perModel },
		Publisher:    bus,
		ReadyTimeout: time.Second,
	})
	disp := dispatcher.New(reg, dispatcher.Config{Workers: 2})
	core := service.New(service.Options{
		Registry:   reg,
		Dispatcher: disp,
		Catalog:    catalog.New(extra, scanned),
		Bus:        bus,
	})
	core.Start(context.Background(), nil)
	srv := httptest.NewServer(httpapi.NewMux(core))
	t.Cleanup(func() {
		srv.Close()
		_ = core.Close(context.Background())
	})
	return &stack{srv: srv, core: core, bus: bus}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	return httpDo(t, http.MethodGet, url, nil)
}

func httpPostJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return httpDo(t, http.MethodPost, url, b)
}

func httpDo(t *testing.T, method, url string, body []byte) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, rd)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	out, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, out
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %T: %v body=%s", v, err, body)
	}
	return v
}
