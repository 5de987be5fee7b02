package registry

import (
	"context"
	"fmt"
	"time"

	"modelcore/pkg/types"
)

// StartMonitor launches the background pressure monitor. It runs until ctx
// is done or StopMonitor is called. Calling it more than once is a no-op.
func (r *Registry) StartMonitor(ctx context.Context) {
	started := false
	r.monitorOnce.Do(func() {
		started = true
		go r.runMonitor(ctx)
	})
	if !started {
		r.log.Debug().Msg("event=monitor_already_started")
	}
}

// StopMonitor stops a running monitor and waits for it to exit.
func (r *Registry) StopMonitor() {
	ran := true
	r.monitorOnce.Do(func() {
		// Never started: nothing to wait for.
		ran = false
		close(r.monitorDone)
	})
	r.stopOnce.Do(func() { close(r.stopMonitor) })
	if ran {
		<-r.monitorDone
	}
}

func (r *Registry) runMonitor(ctx context.Context) {
	defer close(r.monitorDone)
	t := time.NewTicker(r.cfg.MonitorInterval)
	defer t.Stop()
	r.log.Info().Dur("interval", r.cfg.MonitorInterval).Float64("threshold", r.cfg.EmergencyThreshold).Msg("event=monitor_start")
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopMonitor:
			return
		case <-t.C:
			if err := r.safeTick(); err != nil {
				r.log.Error().Err(err).Msg("event=monitor_tick_failed")
			}
		}
	}
}

// safeTick runs one monitor pass; a panic in a backend is reported as an
// error so the loop keeps going.
func (r *Registry) safeTick() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("monitor tick panic: %v", p)
		}
	}()
	return r.MonitorTick()
}

// MonitorTick refreshes backend footprints and, when usage is above the
// emergency threshold, evicts up to PressureBatch non-language models in
// eviction order. Returns the first footprint error, if any; eviction still
// runs.
func (r *Registry) MonitorTick() error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	ferr := r.refreshFootprints()

	r.mu.RLock()
	used, ceiling := r.ledger.Used(), r.ledger.Ceiling()
	r.mu.RUnlock()
	threshold := int64(float64(ceiling) * r.cfg.EmergencyThreshold)
	if used < threshold {
		return ferr
	}
	r.log.Warn().Int64("used", used).Int64("threshold", threshold).Msg("event=memory_pressure")
	notLanguage := func(lm *LoadedModel) bool { return lm.Category != types.CategoryLanguage }
	for i := 0; i < r.cfg.PressureBatch; i++ {
		if !r.evictOne(EventPressureEvicted, notLanguage) {
			break
		}
		r.mu.RLock()
		used = r.ledger.Used()
		r.mu.RUnlock()
		if used < threshold {
			break
		}
	}
	return ferr
}

// refreshFootprints asks backends that can measure themselves for their
// resident size and updates the ledger. The admission estimate is a floor:
// process RSS misses weights held in VRAM or mapped pages, so a smaller
// reading never frees headroom. Caller holds loadMu.
func (r *Registry) refreshFootprints() error {
	type target struct {
		lm  *LoadedModel
		rep FootprintReporter
	}
	r.mu.RLock()
	var targets []target
	for _, lm := range r.models {
		if rep, ok := lm.Backend.(FootprintReporter); ok {
			targets = append(targets, target{lm: lm, rep: rep})
		}
	}
	r.mu.RUnlock()

	var first error
	for _, t := range targets {
		n, err := t.rep.Footprint()
		if err != nil {
			if first == nil {
				first = fmt.Errorf("footprint %s: %w", t.lm.ID, err)
			}
			continue
		}
		if n <= 0 {
			continue
		}
		r.mu.Lock()
		n = max(n, t.lm.EstimatedBytes)
		old := t.lm.ResidentBytes
		// Skip models removed since the target list was built.
		if cur, ok := r.models[t.lm.ID]; !ok || cur != t.lm || n == old {
			r.mu.Unlock()
			continue
		}
		t.lm.ResidentBytes = n
		r.ledger.Adjust(n - old)
		r.mu.Unlock()
		r.publish(EventFootprintChanged, t.lm.ID, map[string]any{"old_bytes": old, "bytes": n})
	}
	return first
}
