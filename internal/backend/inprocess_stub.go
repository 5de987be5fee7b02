//go:build !llama

package backend

import (
	"context"
	"errors"

	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// InProcessBuilt reports whether this binary links llama.cpp.
const InProcessBuilt = false

// ErrInProcessUnavailable is returned by the stub launcher.
var ErrInProcessUnavailable = errors.New("in-process llama support not built (missing 'llama' build tag)")

// InProcessLlamaLauncher fails every load in builds without cgo llama.cpp.
type InProcessLlamaLauncher struct {
	cfg InProcessConfig
}

func NewInProcessLlamaLauncher(cfg InProcessConfig) *InProcessLlamaLauncher {
	return &InProcessLlamaLauncher{cfg: cfg}
}

func (l *InProcessLlamaLauncher) Start(context.Context, types.ModelDescriptor, func(float64)) (registry.Backend, error) {
	return nil, ErrInProcessUnavailable
}
