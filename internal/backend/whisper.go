package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// WhisperConfig configures whisper.cpp server processes.
type WhisperConfig struct {
	Bin       string
	Host      string
	PortStart int
	PortEnd   int
	Threads   int
	ExtraArgs []string
	Logger    *zerolog.Logger
}

// WhisperLauncher serves transcription models through whisper-server.
type WhisperLauncher struct {
	cfg WhisperConfig
}

func NewWhisperLauncher(cfg WhisperConfig) *WhisperLauncher {
	if cfg.Bin == "" {
		cfg.Bin = "whisper-server"
	}
	return &WhisperLauncher{cfg: cfg}
}

func (l *WhisperLauncher) Start(ctx context.Context, desc types.ModelDescriptor, report func(float64)) (registry.Backend, error) {
	if err := checkModelFile("whisper-server", desc.Path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proc, err := StartProcess(ProcessConfig{
		Name: "whisper-server",
		Bin:  l.cfg.Bin,
		Args: func(host string, port int) []string {
			args := []string{"-m", desc.Path, "--host", host, "--port", strconv.Itoa(port)}
			if l.cfg.Threads > 0 {
				args = append(args, "-t", strconv.Itoa(l.cfg.Threads))
			}
			return append(args, l.cfg.ExtraArgs...)
		},
		Host:        l.cfg.Host,
		PortStart:   l.cfg.PortStart,
		PortEnd:     l.cfg.PortEnd,
		HealthPaths: []string{"/"},
		Logger:      l.cfg.Logger,
	}, report)
	if err != nil {
		return nil, err
	}
	report(0.2)
	return &whisperBackend{proc: proc, baseURL: proc.BaseURL(), client: proc.HTTPClient()}, nil
}

type whisperBackend struct {
	proc    server
	baseURL string
	client  *http.Client
}

func (b *whisperBackend) AwaitReady(ctx context.Context) error { return b.proc.AwaitReady(ctx) }

func (b *whisperBackend) Close() error { return b.proc.Stop() }

func (b *whisperBackend) Footprint() (int64, error) { return b.proc.Footprint() }

func (b *whisperBackend) Infer(ctx context.Context, input any) (any, error) {
	in, ok := input.(TranscriptionInput)
	if !ok {
		return nil, unsupported("whisper-server", input)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	name := in.Filename
	if name == "" {
		name = "audio.wav"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(in.Audio); err != nil {
		return nil, err
	}
	_ = mw.WriteField("response_format", "json")
	if in.Language != "" {
		_ = mw.WriteField("language", in.Language)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/inference", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
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
		return nil, fmt.Errorf("whisper-server http error: %s: %s", resp.Status, string(msg))
	}
	var out TranscriptionOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("whisper-server: decode response: %w", err)
	}
	return out, nil
}
