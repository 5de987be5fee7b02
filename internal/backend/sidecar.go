package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// SidecarConfig configures an embedding service started as a child process.
// The service receives PORT, HOST, MODEL_ID and MODEL_PATH in its
// environment and answers POST /embed with a JSON vector.
type SidecarConfig struct {
	// Command is the program and its arguments.
	Command   []string
	Env       []string
	Host      string
	PortStart int
	PortEnd   int
	Logger    *zerolog.Logger
}

// SidecarLauncher serves embedding models through an HTTP sidecar.
type SidecarLauncher struct {
	cfg SidecarConfig
}

func NewSidecarLauncher(cfg SidecarConfig) *SidecarLauncher { return &SidecarLauncher{cfg: cfg} }

func (l *SidecarLauncher) Start(ctx context.Context, desc types.ModelDescriptor, report func(float64)) (registry.Backend, error) {
	if len(l.cfg.Command) == 0 {
		return nil, errors.New("sidecar: command not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env := append([]string{"MODEL_ID=" + desc.ID, "MODEL_PATH=" + desc.Path}, l.cfg.Env...)
	proc, err := StartProcess(ProcessConfig{
		Name:        "sidecar",
		Bin:         l.cfg.Command[0],
		Args:        func(string, int) []string { return l.cfg.Command[1:] },
		Env:         env,
		Host:        l.cfg.Host,
		PortStart:   l.cfg.PortStart,
		PortEnd:     l.cfg.PortEnd,
		HealthPaths: []string{"/health", "/"},
		Logger:      l.cfg.Logger,
	}, report)
	if err != nil {
		return nil, err
	}
	report(0.2)
	return &sidecarBackend{proc: proc, baseURL: proc.BaseURL(), client: proc.HTTPClient()}, nil
}

type sidecarBackend struct {
	proc    server
	baseURL string
	client  *http.Client
}

func (b *sidecarBackend) AwaitReady(ctx context.Context) error { return b.proc.AwaitReady(ctx) }

func (b *sidecarBackend) Close() error { return b.proc.Stop() }

func (b *sidecarBackend) Footprint() (int64, error) { return b.proc.Footprint() }

type embedRequest struct {
	Text  string `json:"text,omitempty"`
	Image []byte `json:"image,omitempty"`
}

func (b *sidecarBackend) Infer(ctx context.Context, input any) (any, error) {
	var payload embedRequest
	switch in := input.(type) {
	case EmbeddingInput:
		payload = embedRequest(in)
	case string:
		payload.Text = in
	default:
		return nil, unsupported("sidecar", input)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sidecar http error: %s: %s", resp.Status, string(msg))
	}
	var vec []float32
	if err := json.NewDecoder(resp.Body).Decode(&vec); err != nil {
		return nil, fmt.Errorf("sidecar: decode vector: %w", err)
	}
	return EmbeddingOutput{Vector: vec}, nil
}
