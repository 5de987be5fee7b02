package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRunner records the inputs it sees in call order.
type fakeRunner struct {
	mu         sync.Mutex
	calls      []any
	runFn      func(ctx context.Context, modelID string, input any) (any, error)
	batchFn    func(ctx context.Context, modelID string, inputs []any) ([]any, []error)
	batchCalls atomic.Int64
}

func (f *fakeRunner) Run(ctx context.Context, modelID string, input any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	f.mu.Unlock()
	if f.runFn != nil {
		return f.runFn(ctx, modelID, input)
	}
	return input, nil
}

func (f *fakeRunner) RunBatch(ctx context.Context, modelID string, inputs []any) ([]any, []error) {
	f.batchCalls.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, inputs...)
	f.mu.Unlock()
	if f.batchFn != nil {
		return f.batchFn(ctx, modelID, inputs)
	}
	return inputs, make([]error, len(inputs))
}

func (f *fakeRunner) seen() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.calls))
	copy(out, f.calls)
	return out
}

// gate blocks runner calls for the "gate" input until opened.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate(t *testing.T) *gate {
	g := &gate{started: make(chan struct{}, 16), release: make(chan struct{})}
	t.Cleanup(g.open)
	return g
}

func (g *gate) open() { g.once.Do(func() { close(g.release) }) }

func (g *gate) wait() {
	g.started <- struct{}{}
	<-g.release
}

// gatedRunner blocks on input "gate" and echoes everything else.
func gatedRunner(g *gate) *fakeRunner {
	return &fakeRunner{runFn: func(_ context.Context, _ string, in any) (any, error) {
		if in == "gate" {
			g.wait()
		}
		return in, nil
	}}
}

func newTestDispatcher(t *testing.T, r Runner, cfg Config) *Dispatcher {
	t.Helper()
	if cfg.IdleWait == 0 {
		cfg.IdleWait = time.Millisecond
	}
	d := New(r, cfg)
	t.Cleanup(d.Close)
	return d
}

// occupy runs a gate request in the background and waits until a worker
// has picked it up.
func occupy(t *testing.T, d *Dispatcher, g *gate, modelID string) {
	t.Helper()
	go func() { _, _ = d.Execute(context.Background(), Request{ModelID: modelID, Input: "gate"}) }()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("gate request never started")
	}
}
