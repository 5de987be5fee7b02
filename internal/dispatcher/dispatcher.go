package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"modelcore/internal/registry"
)

// job is one queued unit of work: a single request, or a whole group of
// requests for one batchable model.
type job struct {
	id       string
	modelID  string
	priority Priority
	class    Class
	inputs   []any
	batch    bool
	ctx      context.Context
	enqueued time.Time
	slot     *slot
}

func (j *job) size() uint64 { return uint64(len(j.inputs)) }

// batchOutcome is the slot value of a batch job.
type batchOutcome struct {
	outs []any
	errs []error
}

// Dispatcher schedules requests onto a fixed worker pool.
type Dispatcher struct {
	cfg    Config
	log    zerolog.Logger
	runner Runner

	queues [numPriorities]chan *job
	sems   [numClasses]*semaphore.Weighted
	slots  [numClasses]int64
	inUse  [numClasses]atomic.Int64

	// parked holds dequeued jobs whose class had no free slot. They run
	// ahead of anything still queued in their tier.
	parkMu sync.Mutex
	parked [numPriorities][]*job

	submitMu  sync.RWMutex
	closed    bool
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	total     atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
}

// New starts cfg.Workers workers executing against runner.
func New(runner Runner, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:     cfg,
		runner:  runner,
		closing: make(chan struct{}),
	}
	if cfg.Logger != nil {
		d.log = cfg.Logger.With().Str("component", "dispatcher").Logger()
	} else {
		d.log = zerolog.Nop()
	}
	for p := range d.queues {
		d.queues[p] = make(chan *job, cfg.QueueCapacity)
	}
	d.slots[ClassAccelerator] = int64(cfg.AcceleratorSlots)
	d.slots[ClassGeneral] = int64(cfg.GeneralSlots)
	for c := range d.sems {
		d.sems[c] = semaphore.NewWeighted(d.slots[c])
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	d.log.Info().Int("workers", cfg.Workers).Int("queue_capacity", cfg.QueueCapacity).
		Int("accelerator_slots", cfg.AcceleratorSlots).Int("general_slots", cfg.GeneralSlots).Msg("event=dispatcher_start")
	return d
}

// Batchable reports whether ExecuteBatch groups requests for modelID into
// one queued unit.
func (d *Dispatcher) Batchable(modelID string) bool {
	return containsAny(modelID, d.cfg.BatchablePatterns)
}

func (d *Dispatcher) newJob(ctx context.Context, modelID string, p Priority, inputs []any, batch bool) *job {
	return &job{
		id:       uuid.NewString(),
		modelID:  modelID,
		priority: p,
		class:    ClassFor(modelID),
		inputs:   inputs,
		batch:    batch,
		ctx:      ctx,
		enqueued: time.Now(),
		slot:     newSlot(),
	}
}

// submit places j on its tier, blocking while the tier is full.
func (d *Dispatcher) submit(ctx context.Context, j *job) error {
	d.submitMu.RLock()
	defer d.submitMu.RUnlock()
	d.total.Add(j.size())
	if d.closed {
		d.cancelled.Add(j.size())
		return ErrCancelled(j.id, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		d.cancelled.Add(j.size())
		return ErrCancelled(j.id, err)
	}
	select {
	case d.queues[j.priority] <- j:
		return nil
	case <-ctx.Done():
		d.cancelled.Add(j.size())
		return ErrCancelled(j.id, ctx.Err())
	case <-d.closing:
		d.cancelled.Add(j.size())
		return ErrCancelled(j.id, ErrClosed)
	}
}

// await blocks until j's slot is settled. If ctx ends first the slot is
// cancelled; a result that landed concurrently still wins.
func (d *Dispatcher) await(ctx context.Context, j *job) (any, error) {
	select {
	case <-j.slot.done:
	case <-ctx.Done():
		d.cancel(j, ctx.Err())
		<-j.slot.done
	}
	return j.slot.result()
}

// cancel settles j as cancelled and reports whether it was still open.
func (d *Dispatcher) cancel(j *job, cause error) bool {
	return j.slot.set(nil, ErrCancelled(j.id, cause), func() { d.cancelled.Add(j.size()) })
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	idle := time.NewTimer(d.cfg.IdleWait)
	defer idle.Stop()
	for {
		select {
		case <-d.closing:
			return
		default:
		}
		if j, ok := d.next(); ok {
			d.process(j)
			continue
		}
		idle.Reset(d.cfg.IdleWait)
		select {
		case <-d.closing:
			return
		case <-idle.C:
		}
	}
}

// next returns the oldest runnable job in priority order with its class slot
// already acquired. A job whose class is saturated is parked rather than held
// by the worker, so other classes keep moving. Within a class, order is kept:
// once a class is found full no later job of that class is tried.
func (d *Dispatcher) next() (*job, bool) {
	d.parkMu.Lock()
	defer d.parkMu.Unlock()
	var full [numClasses]bool
	take := func(j *job) bool {
		if full[j.class] {
			return false
		}
		if d.sems[j.class].TryAcquire(1) {
			return true
		}
		full[j.class] = true
		return false
	}
	for p, q := range d.queues {
		if j := d.unpark(p, take); j != nil {
			return j, true
		}
	poll:
		for len(d.parked[p]) < d.cfg.QueueCapacity {
			select {
			case j := <-q:
				if j.slot.settled() {
					continue
				}
				if take(j) {
					return j, true
				}
				d.parked[p] = append(d.parked[p], j)
			default:
				break poll
			}
		}
	}
	return nil, false
}

// unpark removes and returns the first parked job of tier p that take
// accepts, dropping settled jobs along the way. Caller holds parkMu.
func (d *Dispatcher) unpark(p int, take func(*job) bool) *job {
	list := d.parked[p]
	kept := list[:0]
	var found *job
	for _, j := range list {
		switch {
		case j.slot.settled():
		case found == nil && take(j):
			found = j
		default:
			kept = append(kept, j)
		}
	}
	clear(list[len(kept):])
	d.parked[p] = kept
	return found
}

// process runs j. The worker already holds a slot of j's class.
func (d *Dispatcher) process(j *job) {
	d.inUse[j.class].Add(1)
	defer func() {
		d.inUse[j.class].Add(-1)
		d.sems[j.class].Release(1)
	}()
	if j.slot.settled() {
		return
	}
	if err := j.ctx.Err(); err != nil {
		d.cancel(j, err)
		return
	}

	// Started work is not interrupted by the caller; its result is discarded
	// if the caller has gone.
	ctx := context.WithoutCancel(j.ctx)
	start := time.Now()
	if j.batch {
		d.runBatch(ctx, j)
	} else {
		d.runOne(ctx, j)
	}
	d.log.Debug().Str("request", j.id).Str("model", j.modelID).Stringer("priority", j.priority).
		Stringer("class", j.class).Int("inputs", len(j.inputs)).Dur("queued", start.Sub(j.enqueued)).
		Dur("dur", time.Since(start)).Msg("event=request_done")
}

func (d *Dispatcher) runOne(ctx context.Context, j *job) {
	out, err := d.safeRun(ctx, j)
	if err != nil {
		err = d.wrap(j, err)
	}
	won := j.slot.set(out, err, func() {
		if err != nil {
			d.failed.Add(1)
			return
		}
		d.completed.Add(1)
	})
	if won && err != nil {
		d.log.Warn().Str("request", j.id).Str("model", j.modelID).Err(err).Msg("event=request_failed")
	}
}

func (d *Dispatcher) runBatch(ctx context.Context, j *job) {
	outs, errs := d.safeRunBatch(ctx, j)
	var ok, bad uint64
	for i := range errs {
		if errs[i] != nil {
			errs[i] = d.wrap(j, errs[i])
			bad++
			continue
		}
		ok++
	}
	won := j.slot.set(batchOutcome{outs: outs, errs: errs}, nil, func() {
		d.completed.Add(ok)
		d.failed.Add(bad)
	})
	if won && bad > 0 {
		d.log.Warn().Str("request", j.id).Str("model", j.modelID).Uint64("failed", bad).Msg("event=batch_partial_failure")
	}
}

func (d *Dispatcher) safeRun(ctx context.Context, j *job) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return d.runner.Run(ctx, j.modelID, j.inputs[0])
}

// safeRunBatch always returns slices as long as j.inputs.
func (d *Dispatcher) safeRunBatch(ctx context.Context, j *job) (outs []any, errs []error) {
	n := len(j.inputs)
	defer func() {
		if p := recover(); p != nil {
			outs, errs = make([]any, n), make([]error, n)
			for i := range errs {
				errs[i] = fmt.Errorf("panic: %v", p)
			}
		}
	}()
	outs, errs = d.runner.RunBatch(ctx, j.modelID, j.inputs)
	if len(outs) != n || len(errs) != n {
		bad := fmt.Errorf("runner returned %d results and %d errors for %d inputs", len(outs), len(errs), n)
		outs, errs = make([]any, n), make([]error, n)
		for i := range errs {
			errs[i] = bad
		}
	}
	return outs, errs
}

// wrap keeps the registry's own errors (a model evicted while queued) and
// already classified errors. Anything else the backend returns, timeouts
// included, is an execution failure.
func (d *Dispatcher) wrap(j *job, err error) error {
	switch {
	case registry.IsModelNotLoaded(err), registry.IsInsufficientResources(err), registry.IsLoadFailure(err),
		IsExecutionFailure(err), IsCancelled(err):
		return err
	}
	return ErrExecutionFailure(j.id, j.modelID, err)
}

// Close stops accepting work, lets running requests finish, and fails every
// request still queued with a Cancelled error wrapping ErrClosed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closing)
		d.submitMu.Lock()
		d.closed = true
		d.submitMu.Unlock()
		d.wg.Wait()
		n := 0
		d.parkMu.Lock()
		for p := range d.parked {
			for _, j := range d.parked[p] {
				if d.cancel(j, ErrClosed) {
					n++
				}
			}
			d.parked[p] = nil
		}
		d.parkMu.Unlock()
		for _, q := range d.queues {
			n += d.drain(q)
		}
		d.log.Info().Int("cancelled", n).Msg("event=dispatcher_closed")
	})
}

func (d *Dispatcher) drain(q chan *job) int {
	n := 0
	for {
		select {
		case j := <-q:
			if d.cancel(j, ErrClosed) {
				n++
			}
		default:
			return n
		}
	}
}
