package registry

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Unload removes id and tears its backend down. Without force, a model with
// in-flight inference is left alone and false is returned; with force it is
// removed anyway and the running calls see backend errors. Returns whether a
// model was unloaded.
func (r *Registry) Unload(ctx context.Context, id string, force bool) bool {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.Lock()
	lm, ok := r.models[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if lm.inflight > 0 && !force {
		inflight := lm.inflight
		r.mu.Unlock()
		r.log.Info().Str("model", id).Int("inflight", inflight).Msg("event=unload_refused")
		return false
	}
	delete(r.models, id)
	r.ledger.Release(lm.ResidentBytes)
	r.mu.Unlock()

	r.closeBackend(ctx, lm)
	r.log.Info().Str("model", id).Bool("force", force).Msg("event=unloaded")
	r.publish(EventUnloaded, id, map[string]any{"force": force, "bytes": lm.ResidentBytes})
	return true
}

// closeBackend closes lm's backend, giving up waiting after ctx or the
// configured close timeout.
func (r *Registry) closeBackend(ctx context.Context, lm *LoadedModel) {
	done := make(chan error, 1)
	go func() { done <- lm.Backend.Close() }()
	timer := time.NewTimer(r.cfg.CloseTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			r.log.Warn().Str("model", lm.ID).Err(err).Msg("event=close_error")
		}
	case <-timer.C:
		r.log.Warn().Str("model", lm.ID).Dur("timeout", r.cfg.CloseTimeout).Msg("event=close_timeout")
	case <-ctx.Done():
		r.log.Warn().Str("model", lm.ID).Err(ctx.Err()).Msg("event=close_abandoned")
	}
}

// Close stops the pressure monitor and tears every backend down
// concurrently. The registry is empty afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.StopMonitor()

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.Lock()
	all := make([]*LoadedModel, 0, len(r.models))
	for _, lm := range r.models {
		all = append(all, lm)
		r.ledger.Release(lm.ResidentBytes)
	}
	r.models = make(map[string]*LoadedModel)
	r.mu.Unlock()

	var g errgroup.Group
	for _, lm := range all {
		g.Go(func() error {
			errCh := make(chan error, 1)
			go func() { errCh <- lm.Backend.Close() }()
			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("close %s: %w", lm.ID, err)
				}
			case <-ctx.Done():
				return fmt.Errorf("close %s: %w", lm.ID, ctx.Err())
			}
			r.publish(EventUnloaded, lm.ID, map[string]any{"shutdown": true})
			return nil
		})
	}
	return g.Wait()
}
