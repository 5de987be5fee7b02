package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// LlamaServerConfig configures llama-server processes.
type LlamaServerConfig struct {
	Bin       string
	Host      string
	PortStart int
	PortEnd   int
	// CtxSize is used when a descriptor has no context size.
	CtxSize   int
	GPULayers int
	Threads   int
	ExtraArgs []string
	Logger    *zerolog.Logger
}

// LlamaServerLauncher serves language and text-embedding models through a
// llama.cpp server speaking the OpenAI API.
type LlamaServerLauncher struct {
	cfg LlamaServerConfig
}

func NewLlamaServerLauncher(cfg LlamaServerConfig) *LlamaServerLauncher {
	if cfg.Bin == "" {
		cfg.Bin = "llama-server"
	}
	return &LlamaServerLauncher{cfg: cfg}
}

// Start spawns one llama-server for desc.
func (l *LlamaServerLauncher) Start(ctx context.Context, desc types.ModelDescriptor, report func(float64)) (registry.Backend, error) {
	if err := checkModelFile("llama-server", desc.Path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embedding := desc.Category == types.CategoryTextEmbedding
	proc, err := StartProcess(ProcessConfig{
		Name:        "llama-server",
		Bin:         l.cfg.Bin,
		Args:        func(host string, port int) []string { return l.args(desc, host, port, embedding) },
		Host:        l.cfg.Host,
		PortStart:   l.cfg.PortStart,
		PortEnd:     l.cfg.PortEnd,
		HealthPaths: []string{"/v1/models"},
		Logger:      l.cfg.Logger,
	}, report)
	if err != nil {
		return nil, err
	}
	report(0.2)
	return newLlamaServerBackend(proc, proc.BaseURL(), desc.ID, embedding), nil
}

func (l *LlamaServerLauncher) args(desc types.ModelDescriptor, host string, port int, embedding bool) []string {
	args := []string{"-m", desc.Path, "--host", host, "--port", strconv.Itoa(port)}
	ctxSize := desc.ContextSize
	if ctxSize <= 0 {
		ctxSize = l.cfg.CtxSize
	}
	if ctxSize > 0 {
		args = append(args, "-c", strconv.Itoa(ctxSize))
	}
	if desc.BatchSize > 0 {
		args = append(args, "-b", strconv.Itoa(desc.BatchSize))
	}
	if l.cfg.GPULayers > 0 {
		args = append(args, "-ngl", strconv.Itoa(l.cfg.GPULayers))
	}
	if l.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(l.cfg.Threads))
	}
	if embedding {
		args = append(args, "--embedding")
	}
	return append(args, l.cfg.ExtraArgs...)
}

// server is the part of Process a backend needs; tests substitute it.
type server interface {
	AwaitReady(ctx context.Context) error
	Stop() error
	Footprint() (int64, error)
}

type llamaServerBackend struct {
	proc      server
	client    *openai.Client
	model     string
	embedding bool
}

func newLlamaServerBackend(proc server, baseURL, model string, embedding bool) *llamaServerBackend {
	cfg := openai.DefaultConfig("not-needed")
	cfg.BaseURL = baseURL + "/v1"
	if p, ok := proc.(*Process); ok {
		cfg.HTTPClient = p.HTTPClient()
	}
	return &llamaServerBackend{
		proc:      proc,
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		embedding: embedding,
	}
}

func (b *llamaServerBackend) AwaitReady(ctx context.Context) error { return b.proc.AwaitReady(ctx) }

func (b *llamaServerBackend) Close() error { return b.proc.Stop() }

func (b *llamaServerBackend) Footprint() (int64, error) { return b.proc.Footprint() }

func (b *llamaServerBackend) Infer(ctx context.Context, input any) (any, error) {
	switch in := input.(type) {
	case CompletionInput:
		return b.complete(ctx, in)
	case string:
		return b.complete(ctx, CompletionInput{Prompt: in})
	case ChatInput:
		return b.chat(ctx, in)
	case EmbeddingInput:
		vecs, err := b.embed(ctx, []string{in.Text})
		if err != nil {
			return nil, err
		}
		return EmbeddingOutput{Vector: vecs[0]}, nil
	}
	return nil, unsupported("llama-server", input)
}

// InferBatch sends all-embedding batches as one request; anything else runs
// input by input.
func (b *llamaServerBackend) InferBatch(ctx context.Context, inputs []any) ([]any, error) {
	texts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		e, ok := in.(EmbeddingInput)
		if !ok {
			texts = nil
			break
		}
		texts = append(texts, e.Text)
	}
	out := make([]any, len(inputs))
	if texts != nil {
		vecs, err := b.embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, v := range vecs {
			out[i] = EmbeddingOutput{Vector: v}
		}
		return out, nil
	}
	for i, in := range inputs {
		v, err := b.Infer(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (b *llamaServerBackend) complete(ctx context.Context, in CompletionInput) (CompletionOutput, error) {
	req := openai.CompletionRequest{
		Model:       b.model,
		Prompt:      in.Prompt,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
		TopP:        in.TopP,
		Stop:        in.Stop,
	}
	if in.Seed != 0 {
		seed := in.Seed
		req.Seed = &seed
	}
	resp, err := b.client.CreateCompletion(ctx, req)
	if err != nil {
		return CompletionOutput{}, fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionOutput{}, errors.New("no choices returned")
	}
	return CompletionOutput{
		Text:             resp.Choices[0].Text,
		FinishReason:     resp.Choices[0].FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (b *llamaServerBackend) chat(ctx context.Context, in ChatInput) (CompletionOutput, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(in.Messages))
	for _, m := range in.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    msgs,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
	if err != nil {
		return CompletionOutput{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionOutput{}, errors.New("no choices returned")
	}
	return CompletionOutput{
		Text:             resp.Choices[0].Message.Content,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (b *llamaServerBackend) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !b.embedding {
		return nil, fmt.Errorf("llama-server: %w: model %s not started for embeddings", ErrUnsupportedInput, b.model)
	}
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(b.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
