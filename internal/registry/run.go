package registry

import (
	"context"
	"fmt"
)

// acquire looks id up, records the access and marks one call in flight so
// the model is not chosen for eviction while it runs.
func (r *Registry) acquire(id string) (*LoadedModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lm, ok := r.models[id]
	if !ok {
		return nil, ErrModelNotLoaded(id)
	}
	r.touch(lm)
	lm.inflight++
	return lm, nil
}

func (r *Registry) release(lm *LoadedModel) {
	r.mu.Lock()
	lm.inflight--
	lm.LastAccess = r.now()
	r.mu.Unlock()
}

// Run executes one inference call against a resident model. Existence is
// checked at call time; a model evicted since the request was queued yields
// a model-not-loaded error.
func (r *Registry) Run(ctx context.Context, modelID string, input any) (any, error) {
	lm, err := r.acquire(modelID)
	if err != nil {
		return nil, err
	}
	defer r.release(lm)
	return lm.Backend.Infer(ctx, input)
}

// RunBatch executes inputs against one model in input order. Backends that
// implement BatchBackend get a single call; others are called once per input.
// errs[i] is non-nil when input i failed.
func (r *Registry) RunBatch(ctx context.Context, modelID string, inputs []any) ([]any, []error) {
	outs := make([]any, len(inputs))
	errs := make([]error, len(inputs))
	lm, err := r.acquire(modelID)
	if err != nil {
		for i := range errs {
			errs[i] = err
		}
		return outs, errs
	}
	defer r.release(lm)

	if bb, ok := lm.Backend.(BatchBackend); ok && len(inputs) > 1 {
		res, err := bb.InferBatch(ctx, inputs)
		if err == nil && len(res) != len(inputs) {
			err = fmt.Errorf("batch returned %d results for %d inputs", len(res), len(inputs))
		}
		if err != nil {
			for i := range errs {
				errs[i] = err
			}
			return outs, errs
		}
		copy(outs, res)
		return outs, errs
	}

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(inputs); j++ {
				errs[j] = err
			}
			break
		}
		outs[i], errs[i] = lm.Backend.Infer(ctx, in)
	}
	return outs, errs
}
