package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"modelcore/pkg/types"
)

// fakeBackend is an in-memory backend used for tests.
type fakeBackend struct {
	id        string
	readyErr  error
	readyWait time.Duration
	inferFn   func(ctx context.Context, in any) (any, error)
	footprint atomic.Int64
	footErr   error
	footPanic bool
	closed    atomic.Bool
	calls     atomic.Int64
}

func (b *fakeBackend) AwaitReady(ctx context.Context) error {
	if b.readyWait > 0 {
		select {
		case <-time.After(b.readyWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.readyErr
}

func (b *fakeBackend) Infer(ctx context.Context, in any) (any, error) {
	b.calls.Add(1)
	if b.inferFn != nil {
		return b.inferFn(ctx, in)
	}
	return in, nil
}

func (b *fakeBackend) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *fakeBackend) Footprint() (int64, error) {
	if b.footPanic {
		panic("probe exploded")
	}
	return b.footprint.Load(), b.footErr
}

// batchBackend also implements BatchBackend.
type batchBackend struct {
	fakeBackend
	batchCalls atomic.Int64
}

func (b *batchBackend) InferBatch(ctx context.Context, inputs []any) ([]any, error) {
	b.batchCalls.Add(1)
	out := make([]any, len(inputs))
	copy(out, inputs)
	return out, nil
}

// fakeLauncher records starts and hands out fakeBackends.
type fakeLauncher struct {
	mu       sync.Mutex
	starts   map[string]int
	backends map[string]*fakeBackend
	startErr error
	prepare  func(desc types.ModelDescriptor, b *fakeBackend)
	onStart  func(desc types.ModelDescriptor)
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{starts: map[string]int{}, backends: map[string]*fakeBackend{}}
}

func (l *fakeLauncher) Start(ctx context.Context, desc types.ModelDescriptor, report func(float64)) (Backend, error) {
	if l.onStart != nil {
		l.onStart(desc)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts[desc.ID]++
	if l.startErr != nil {
		return nil, l.startErr
	}
	report(0.5)
	b := &fakeBackend{id: desc.ID}
	if l.prepare != nil {
		l.prepare(desc, b)
	}
	l.backends[desc.ID] = b
	return b, nil
}

func (l *fakeLauncher) startCount(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts[id]
}

func (l *fakeLauncher) backend(id string) *fakeBackend {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backends[id]
}

// fakeClock advances one second on every call so access order is strict.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// sizes returns an estimator reading per-id sizes from m, 10 bytes otherwise.
func sizes(m map[string]int64) func(types.ModelDescriptor) int64 {
	return func(d types.ModelDescriptor) int64 {
		if n, ok := m[d.ID]; ok {
			return n
		}
		return 10
	}
}

// newTestRegistry wires one fake launcher to every category.
func newTestRegistry(t *testing.T, ceiling int64, est map[string]int64) (*Registry, *fakeLauncher) {
	t.Helper()
	l := newFakeLauncher()
	launchers := map[types.Category]Launcher{}
	for _, c := range types.Categories {
		launchers[c] = l
	}
	r := New(Config{
		CeilingBytes: ceiling,
		Launchers:    launchers,
		Estimate:     sizes(est),
		ReadyTimeout: time.Second,
	})
	r.now = (&fakeClock{t: time.Unix(1_700_000_000, 0)}).Now
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, l
}

func llm(id string) types.ModelDescriptor {
	return types.ModelDescriptor{ID: id, Category: types.CategoryLanguage}
}

func embed(id string) types.ModelDescriptor {
	return types.ModelDescriptor{ID: id, Category: types.CategoryTextEmbedding}
}

func mustLoad(t *testing.T, r *Registry, d types.ModelDescriptor) Handle {
	t.Helper()
	h, err := r.Load(context.Background(), d)
	if err != nil {
		t.Fatalf("load %s: %v", d.ID, err)
	}
	return h
}

// checkInvariant asserts the ledger matches the table and stays under the ceiling.
func checkInvariant(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, lm := range r.models {
		sum += lm.ResidentBytes
	}
	if sum != r.ledger.Used() {
		t.Fatalf("ledger used=%d but table sums to %d", r.ledger.Used(), sum)
	}
	if sum > r.ledger.Ceiling() {
		t.Fatalf("resident %d exceeds ceiling %d", sum, r.ledger.Ceiling())
	}
}

var errBoom = errors.New("boom")

