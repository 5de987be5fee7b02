//go:build !llama

package backend

import (
	"context"
	"errors"
	"testing"

	"modelcore/pkg/types"
)

func TestInProcessStubRefusesLoad(t *testing.T) {
	l := NewInProcessLlamaLauncher(InProcessConfig{})
	_, err := l.Start(context.Background(), types.ModelDescriptor{ID: "m", Path: "m.gguf"}, func(float64) {})
	if !errors.Is(err, ErrInProcessUnavailable) {
		t.Fatalf("want ErrInProcessUnavailable, got %v", err)
	}
	if InProcessBuilt {
		t.Fatalf("stub build should report InProcessBuilt=false")
	}
}
