package registry

import (
	"context"

	"modelcore/pkg/types"
)

// Launcher starts a backend for one model category (language-model server,
// transcription engine, embedding engine). One launcher is selected per
// category when the registry is built.
type Launcher interface {
	// Start begins loading desc. report receives fractional progress in [0,1].
	Start(ctx context.Context, desc types.ModelDescriptor, report func(fraction float64)) (Backend, error)
}

// LauncherFunc adapts a function to a Launcher.
type LauncherFunc func(ctx context.Context, desc types.ModelDescriptor, report func(float64)) (Backend, error)

func (f LauncherFunc) Start(ctx context.Context, desc types.ModelDescriptor, report func(float64)) (Backend, error) {
	return f(ctx, desc, report)
}

// Backend is a started model runtime.
type Backend interface {
	// AwaitReady blocks until the backend can serve or ctx expires.
	AwaitReady(ctx context.Context) error
	// Infer runs one inference call. Input and output types are defined by
	// the backend package.
	Infer(ctx context.Context, input any) (any, error)
	// Close tears the backend down and releases its memory.
	Close() error
}

// BatchBackend is implemented by backends that can serve N inputs in one call.
type BatchBackend interface {
	Backend
	InferBatch(ctx context.Context, inputs []any) ([]any, error)
}

// FootprintReporter is implemented by backends that can measure their own
// resident memory after load.
type FootprintReporter interface {
	Footprint() (int64, error)
}
