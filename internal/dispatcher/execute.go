package dispatcher

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchResult holds per-index outcomes of ExecuteBatch. Results[i] is the
// zero value when Errors has an entry for i.
type BatchResult[T any] struct {
	Results      []T
	Errors       map[int]error
	Total        int
	SuccessCount int
	FailureCount int
}

// Successes returns the successful results in input order.
func (b BatchResult[T]) Successes() []T {
	out := make([]T, 0, b.SuccessCount)
	for i, r := range b.Results {
		if _, failed := b.Errors[i]; !failed {
			out = append(out, r)
		}
	}
	return out
}

// Execute queues req and waits for its result. If ctx ends first the call
// returns a Cancelled error immediately; a request cancelled before a worker
// picks it up never reaches the runner.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (any, error) {
	j := d.newJob(ctx, req.ModelID, PriorityFor(req.ModelID, req.Tags), []any{req.Input}, false)
	if err := d.submit(ctx, j); err != nil {
		return nil, err
	}
	return d.await(ctx, j)
}

// ExecuteBatch runs reqs and reports results and errors by original index.
// Requests are grouped by model; a group for a batchable model is queued as
// one unit and executed through the runner's batch path in input order.
// Other requests are executed individually and concurrently. A failure never
// aborts its siblings.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, reqs []Request) BatchResult[any] {
	res := BatchResult[any]{
		Results: make([]any, len(reqs)),
		Errors:  map[int]error{},
		Total:   len(reqs),
	}
	var mu sync.Mutex
	set := func(i int, out any, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Errors[i] = err
			return
		}
		res.Results[i] = out
	}

	var order []string
	groups := map[string][]int{}
	for i, r := range reqs {
		if _, ok := groups[r.ModelID]; !ok {
			order = append(order, r.ModelID)
		}
		groups[r.ModelID] = append(groups[r.ModelID], i)
	}

	var g errgroup.Group
	for _, modelID := range order {
		idx := groups[modelID]
		if d.Batchable(modelID) && len(idx) > 1 {
			g.Go(func() error {
				d.executeGroup(ctx, modelID, idx, reqs, set)
				return nil
			})
			continue
		}
		for _, i := range idx {
			g.Go(func() error {
				out, err := d.Execute(ctx, reqs[i])
				set(i, out, err)
				return nil
			})
		}
	}
	_ = g.Wait()

	res.FailureCount = len(res.Errors)
	res.SuccessCount = res.Total - res.FailureCount
	return res
}

// executeGroup queues one batch job for idx at the most urgent priority of
// its members.
func (d *Dispatcher) executeGroup(ctx context.Context, modelID string, idx []int, reqs []Request, set func(int, any, error)) {
	p := PriorityLow
	inputs := make([]any, len(idx))
	for k, i := range idx {
		inputs[k] = reqs[i].Input
		if rp := PriorityFor(modelID, reqs[i].Tags); rp < p {
			p = rp
		}
	}
	j := d.newJob(ctx, modelID, p, inputs, true)
	if err := d.submit(ctx, j); err != nil {
		for _, i := range idx {
			set(i, nil, err)
		}
		return
	}
	v, err := d.await(ctx, j)
	if err != nil {
		for _, i := range idx {
			set(i, nil, err)
		}
		return
	}
	outcome := v.(batchOutcome)
	for k, i := range idx {
		set(i, outcome.outs[k], outcome.errs[k])
	}
}

// Execute is the typed form of Dispatcher.Execute. A result of another type
// is reported as an execution failure.
func Execute[T any](ctx context.Context, d *Dispatcher, req Request) (T, error) {
	var zero T
	out, err := d.Execute(ctx, req)
	if err != nil {
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		return zero, ErrExecutionFailure("", req.ModelID, fmt.Errorf("result is %T, want %T", out, zero))
	}
	return v, nil
}

// ExecuteBatch is the typed form of Dispatcher.ExecuteBatch.
func ExecuteBatch[T any](ctx context.Context, d *Dispatcher, reqs []Request) BatchResult[T] {
	return typedBatch[T](d.ExecuteBatch(ctx, reqs), reqs)
}

// typedBatch converts raw into a BatchResult[T]. raw is left untouched.
func typedBatch[T any](raw BatchResult[any], reqs []Request) BatchResult[T] {
	errs := maps.Clone(raw.Errors)
	if errs == nil {
		errs = map[int]error{}
	}
	res := BatchResult[T]{
		Results: make([]T, len(raw.Results)),
		Errors:  errs,
		Total:   raw.Total,
	}
	for i, r := range raw.Results {
		if _, failed := res.Errors[i]; failed {
			continue
		}
		v, ok := r.(T)
		if !ok {
			res.Errors[i] = ErrExecutionFailure("", reqs[i].ModelID, fmt.Errorf("result is %T, want %T", r, v))
			continue
		}
		res.Results[i] = v
	}
	res.FailureCount = len(res.Errors)
	res.SuccessCount = res.Total - res.FailureCount
	return res
}
