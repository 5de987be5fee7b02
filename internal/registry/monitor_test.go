package registry

import (
	"context"
	"testing"
	"time"

	"modelcore/pkg/types"
)

func TestMonitorTick_EvictsNonLanguageUnderPressure(t *testing.T) {
	r, _ := newTestRegistry(t, 100, map[string]int64{"l": 50, "e1": 20, "e2": 20})
	pub := NewMemoryPublisher()
	r.cfg.Publisher = pub
	mustLoad(t, r, llm("l"))
	mustLoad(t, r, embed("e1"))
	mustLoad(t, r, embed("e2"))

	if err := r.MonitorTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if r.IsLoaded("e1") {
		t.Fatalf("oldest non-language model should be evicted")
	}
	if !r.IsLoaded("l") || !r.IsLoaded("e2") {
		t.Fatalf("eviction should stop once below threshold")
	}
	found := false
	for _, e := range pub.Events() {
		if e.Name == EventPressureEvicted && e.ModelID == "e1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing pressure_evicted event: %v", pub.Names())
	}
}

func TestMonitorTick_LeavesLanguageModels(t *testing.T) {
	r, _ := newTestRegistry(t, 100, map[string]int64{"l1": 50, "l2": 45})
	mustLoad(t, r, llm("l1"))
	mustLoad(t, r, llm("l2"))
	if err := r.MonitorTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !r.IsLoaded("l1") || !r.IsLoaded("l2") {
		t.Fatalf("language models are not pressure-evicted")
	}
}

func TestMonitorTick_BelowThresholdNoop(t *testing.T) {
	r, _ := newTestRegistry(t, 100, nil)
	mustLoad(t, r, embed("e"))
	if err := r.MonitorTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !r.IsLoaded("e") {
		t.Fatalf("no eviction expected below threshold")
	}
}

func TestMonitorTick_FootprintRefresh(t *testing.T) {
	r, l := newTestRegistry(t, 100, map[string]int64{"l": 50, "e": 20})
	pub := NewMemoryPublisher()
	r.cfg.Publisher = pub
	mustLoad(t, r, llm("l"))
	mustLoad(t, r, embed("e"))

	l.backend("e").footprint.Store(25)
	if err := r.MonitorTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	info, _ := r.Info("e")
	if info.ResidentBytes != 25 {
		t.Fatalf("resident=%d want 25", info.ResidentBytes)
	}
	checkInvariant(t, r)

	// Growth past the emergency threshold is corrected on the same tick.
	l.backend("e").footprint.Store(45)
	if err := r.MonitorTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if r.IsLoaded("e") {
		t.Fatalf("grown embedding model should be pressure-evicted")
	}
	if used, _ := r.Usage(); used != 50 {
		t.Fatalf("used=%d want 50", used)
	}
	var changed bool
	for _, n := range pub.Names() {
		if n == EventFootprintChanged {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("missing footprint_changed event")
	}
}

func TestMonitorTick_FootprintErrorStillEvicts(t *testing.T) {
	r, l := newTestRegistry(t, 100, map[string]int64{"e": 95})
	l.prepare = func(_ types.ModelDescriptor, b *fakeBackend) { b.footErr = errBoom }
	mustLoad(t, r, embed("e"))
	if err := r.MonitorTick(); err == nil {
		t.Fatalf("footprint error should be reported")
	}
	if r.IsLoaded("e") {
		t.Fatalf("eviction should still run after a probe error")
	}
}

func TestSafeTick_RecoversPanic(t *testing.T) {
	r, l := newTestRegistry(t, 100, nil)
	l.prepare = func(_ types.ModelDescriptor, b *fakeBackend) { b.footPanic = true }
	mustLoad(t, r, embed("e"))
	if err := r.safeTick(); err == nil {
		t.Fatalf("panic should surface as an error")
	}
	// loadMu must have been released by the deferred unlock.
	if !r.EvictLeastRecentlyUsed() {
		t.Fatalf("registry should remain usable after a panicking tick")
	}
}

func TestMonitor_Loop(t *testing.T) {
	r, _ := newTestRegistry(t, 100, map[string]int64{"e": 95})
	r.cfg.MonitorInterval = 5 * time.Millisecond
	mustLoad(t, r, embed("e"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartMonitor(ctx)
	r.StartMonitor(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for r.IsLoaded("e") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.IsLoaded("e") {
		t.Fatalf("monitor did not relieve pressure")
	}
	r.StopMonitor()
	r.StopMonitor()
}

func TestStopMonitor_NeverStarted(t *testing.T) {
	r, _ := newTestRegistry(t, 100, nil)
	done := make(chan struct{})
	go func() { r.StopMonitor(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("StopMonitor blocked without a running monitor")
	}
}

func TestMonitorTick_SmallerFootprintKeepsEstimate(t *testing.T) {
	r, l := newTestRegistry(t, 100, map[string]int64{"l": 60, "m": 60})
	mustLoad(t, r, llm("l"))

	// RSS of a GPU-offloaded server is far below its real footprint.
	l.backend("l").footprint.Store(5)
	if err := r.MonitorTick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	info, _ := r.Info("l")
	if info.ResidentBytes != 60 {
		t.Fatalf("resident=%d want 60", info.ResidentBytes)
	}
	if used, _ := r.Usage(); used != 60 {
		t.Fatalf("used=%d want 60", used)
	}

	// Admitting m now requires evicting l.
	mustLoad(t, r, llm("m"))
	if r.IsLoaded("l") {
		t.Fatalf("two 60-byte models resident under a 100-byte ceiling")
	}
	checkInvariant(t, r)
}
