//go:build llama

package backend

import (
	"context"
	"errors"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// InProcessBuilt reports whether this binary links llama.cpp.
const InProcessBuilt = true

// InProcessLlamaLauncher loads GGUF models into this process.
type InProcessLlamaLauncher struct {
	cfg InProcessConfig
}

func NewInProcessLlamaLauncher(cfg InProcessConfig) *InProcessLlamaLauncher {
	return &InProcessLlamaLauncher{cfg: cfg}
}

func (l *InProcessLlamaLauncher) Start(ctx context.Context, desc types.ModelDescriptor, report func(float64)) (registry.Backend, error) {
	if err := checkModelFile("llama", desc.Path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctxSize := desc.ContextSize
	if ctxSize <= 0 {
		ctxSize = l.cfg.CtxSize
	}
	opts := []llama.ModelOption{llama.SetContext(ctxSize)}
	if l.cfg.GPULayers > 0 {
		opts = append(opts, llama.SetGPULayers(l.cfg.GPULayers))
	}
	embedding := desc.Category == types.CategoryTextEmbedding
	if embedding {
		opts = append(opts, llama.EnableEmbeddings)
	}
	report(0.1)
	m, err := llama.New(desc.Path, opts...)
	if err != nil {
		return nil, err
	}
	return &inProcessBackend{model: m, threads: l.cfg.Threads, embedding: embedding}, nil
}

// inProcessBackend serializes calls; a llama.cpp context is not reentrant.
type inProcessBackend struct {
	mu        sync.Mutex
	model     *llama.LLama
	threads   int
	embedding bool
}

func (b *inProcessBackend) AwaitReady(context.Context) error { return nil }

func (b *inProcessBackend) Infer(ctx context.Context, input any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	switch in := input.(type) {
	case CompletionInput:
		return b.predict(ctx, in)
	case string:
		return b.predict(ctx, CompletionInput{Prompt: in})
	case ChatInput:
		return b.predict(ctx, CompletionInput{Prompt: chatPrompt(in.Messages), MaxTokens: in.MaxTokens, Temperature: in.Temperature})
	case EmbeddingInput:
		if !b.embedding {
			return nil, unsupported("llama", input)
		}
		vec, err := b.model.Embeddings(in.Text, llama.SetThreads(max(1, b.threads)))
		if err != nil {
			return nil, err
		}
		return EmbeddingOutput{Vector: vec}, nil
	}
	return nil, unsupported("llama", input)
}

func (b *inProcessBackend) predict(ctx context.Context, in CompletionInput) (CompletionOutput, error) {
	b.model.SetTokenCallback(func(string) bool { return ctx.Err() == nil })
	text, err := b.model.Predict(in.Prompt, predictOptions(in, b.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return CompletionOutput{}, ctx.Err()
		}
		return CompletionOutput{}, err
	}
	return CompletionOutput{Text: text, FinishReason: "stop"}, nil
}

func (b *inProcessBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		b.model.Free()
		b.model = nil
	}
	return nil
}

func predictOptions(in CompletionInput, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, in.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(orDefault(in.TopP, llama.DefaultOptions.TopP)),
		llama.SetTemperature(orDefault(in.Temperature, llama.DefaultOptions.Temperature)),
	}
	if in.Seed != 0 {
		po = append(po, llama.SetSeed(in.Seed))
	}
	if len(in.Stop) > 0 {
		po = append(po, llama.SetStopWords(in.Stop...))
	}
	return po
}

func orDefault(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
