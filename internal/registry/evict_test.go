package registry

import (
	"context"
	"math/rand"
	"testing"
)

func TestEvictLeastRecentlyUsed(t *testing.T) {
	r, l := newTestRegistry(t, 100, nil)
	if r.EvictLeastRecentlyUsed() {
		t.Fatalf("empty registry should report no eviction")
	}
	mustLoad(t, r, llm("old"))
	mustLoad(t, r, llm("new"))
	if !r.EvictLeastRecentlyUsed() {
		t.Fatalf("expected an eviction")
	}
	if r.IsLoaded("old") || !r.IsLoaded("new") {
		t.Fatalf("old should be evicted first")
	}
	if !l.backend("old").closed.Load() {
		t.Fatalf("evicted backend should be closed")
	}
	if st := r.Stats(); st.EvictionsTotal != 1 {
		t.Fatalf("evictions=%d want 1", st.EvictionsTotal)
	}
}

func TestEvictLeastRecentlyUsed_PinnedOnly(t *testing.T) {
	r, _ := newTestRegistry(t, 100, nil)
	d := llm("p")
	d.Pinned = true
	mustLoad(t, r, d)
	if r.EvictLeastRecentlyUsed() {
		t.Fatalf("pinned model must not be evicted")
	}
}

func TestMemoryInvariant_RandomOps(t *testing.T) {
	est := map[string]int64{}
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for i, id := range ids {
		est[id] = int64(5 + i*3)
	}
	r, _ := newTestRegistry(t, 40, est)
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()
	for step := 0; step < 500; step++ {
		id := ids[rng.Intn(len(ids))]
		switch rng.Intn(4) {
		case 0, 1:
			d := llm(id)
			d.Pinned = rng.Intn(10) == 0
			if _, err := r.Load(ctx, d); err != nil && !IsInsufficientResources(err) {
				t.Fatalf("step %d load %s: %v", step, id, err)
			}
		case 2:
			r.EvictLeastRecentlyUsed()
		case 3:
			r.Unload(ctx, id, false)
		}
		checkInvariant(t, r)
	}
}
