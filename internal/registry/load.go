package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"modelcore/pkg/types"
)

// Load makes desc resident and returns its handle. Loading an id that is
// already resident bumps its access record and returns the existing handle.
// Otherwise least-recently-used unpinned idle models are evicted until the
// estimate fits; if nothing evictable is left the call fails with an
// insufficient-resources error instead of waiting for memory.
func (r *Registry) Load(ctx context.Context, desc types.ModelDescriptor) (Handle, error) {
	desc, err := desc.Normalize()
	if err != nil {
		return Handle{}, ErrLoadFailure(desc.ID, err)
	}
	if h, ok := r.reuse(desc.ID); ok {
		return h, nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	// Another caller may have loaded it while we waited for the lock.
	if h, ok := r.reuse(desc.ID); ok {
		return h, nil
	}

	launcher := r.cfg.Launchers[desc.Category]
	if launcher == nil {
		return Handle{}, ErrLoadFailure(desc.ID, fmt.Errorf("no launcher for category %q", desc.Category))
	}

	cost := r.cfg.Estimate(desc)
	if err := r.makeRoom(desc.ID, cost); err != nil {
		r.log.Warn().Str("model", desc.ID).Int64("bytes", cost).Err(err).Msg("event=load_rejected")
		r.publish(EventLoadFailed, desc.ID, map[string]any{"error": err.Error(), "bytes": cost})
		return Handle{}, err
	}

	startTs := r.now()
	r.log.Info().Str("model", desc.ID).Str("category", string(desc.Category)).Int64("bytes", cost).Msg("event=load_start")
	r.publish(EventLoadStarted, desc.ID, map[string]any{"bytes": cost, "category": string(desc.Category)})
	report := r.reporter(desc.ID)
	report(0)

	backend, err := r.startBackend(ctx, launcher, desc, report)
	if err != nil {
		r.log.Error().Str("model", desc.ID).Err(err).Msg("event=load_failed")
		r.publish(EventLoadFailed, desc.ID, map[string]any{"error": err.Error()})
		return Handle{}, ErrLoadFailure(desc.ID, err)
	}

	lm := &LoadedModel{
		ID:             desc.ID,
		SessionID:      uuid.NewString(),
		Category:       desc.Category,
		Backend:        backend,
		ResidentBytes:  cost,
		EstimatedBytes: cost,
		LastAccess:     r.now(),
		AccessCount:    1,
		Pinned:         desc.Pinned,
		LoadDuration:   r.now().Sub(startTs),
		Descriptor:     desc,
	}
	r.mu.Lock()
	if err := r.ledger.Reserve(cost); err != nil {
		// Only footprint growth observed concurrently can get us here.
		avail := r.ledger.Available()
		r.mu.Unlock()
		_ = backend.Close()
		r.publish(EventLoadFailed, desc.ID, map[string]any{"error": err.Error()})
		return Handle{}, ErrInsufficientResources(desc.ID, cost, avail)
	}
	r.models[desc.ID] = lm
	h := lm.handle(false)
	r.mu.Unlock()
	r.loadsTotal.Add(1)

	report(1)
	r.log.Info().Str("model", desc.ID).Str("session", lm.SessionID).Dur("dur", lm.LoadDuration).Msg("event=load_ready")
	r.publish(EventLoadCompleted, desc.ID, map[string]any{"session_id": lm.SessionID, "bytes": cost, "dur_ms": lm.LoadDuration.Milliseconds()})
	return h, nil
}

// reuse returns the existing handle for id, recording the access.
func (r *Registry) reuse(id string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lm, ok := r.models[id]
	if !ok {
		return Handle{}, false
	}
	r.touch(lm)
	return lm.handle(true), true
}

// makeRoom evicts until cost fits under the ceiling. Caller holds loadMu.
func (r *Registry) makeRoom(modelID string, cost int64) error {
	r.mu.RLock()
	ceiling := r.ledger.Ceiling()
	r.mu.RUnlock()
	if cost > ceiling {
		// Evicting everything would not help.
		return ErrInsufficientResources(modelID, cost, ceiling)
	}
	for {
		r.mu.RLock()
		fits := r.ledger.Fits(cost)
		avail := r.ledger.Available()
		r.mu.RUnlock()
		if fits {
			return nil
		}
		if !r.evictOne(EventEvicted, nil) {
			return ErrInsufficientResources(modelID, cost, avail)
		}
	}
}

// startBackend runs the category-specific load and waits for readiness.
// A backend that fails to become ready is torn down before returning.
func (r *Registry) startBackend(ctx context.Context, l Launcher, desc types.ModelDescriptor, report func(float64)) (Backend, error) {
	b, err := l.Start(ctx, desc, report)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("launcher returned no backend")
	}
	readyCtx, cancel := context.WithTimeout(ctx, r.cfg.ReadyTimeout)
	defer cancel()
	if err := b.AwaitReady(readyCtx); err != nil {
		if cerr := b.Close(); cerr != nil {
			r.log.Warn().Str("model", desc.ID).Err(cerr).Msg("event=close_after_failed_ready")
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("backend not ready within %s: %w", r.cfg.ReadyTimeout, err)
		}
		return nil, err
	}
	return b, nil
}

func (r *Registry) reporter(modelID string) func(float64) {
	return func(f float64) {
		r.cfg.Progress.Report(modelID, f)
		r.publish(EventLoadProgress, modelID, map[string]any{"fraction": f})
	}
}

// Preload loads descs at startup, pinned models first, and marks the registry
// ready. Failures do not stop the remaining loads; they are joined.
func (r *Registry) Preload(ctx context.Context, descs []types.ModelDescriptor) error {
	defer r.MarkReady()
	ordered := make([]types.ModelDescriptor, len(descs))
	copy(ordered, descs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Pinned && !ordered[j].Pinned })
	var errs []error
	for _, d := range ordered {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		if _, err := r.Load(ctx, d); err != nil {
			errs = append(errs, err)
			continue
		}
		r.log.Debug().Str("model", d.ID).Dur("dur", time.Since(start)).Msg("event=preload_done")
	}
	return errors.Join(errs...)
}
