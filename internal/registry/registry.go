package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"modelcore/internal/accountant"
	"modelcore/pkg/types"
)

// Registry admits, tracks and evicts models so that aggregate resident
// memory never exceeds the configured ceiling.
type Registry struct {
	cfg Config
	log zerolog.Logger

	loadMu sync.Mutex

	mu     sync.RWMutex
	models map[string]*LoadedModel
	ledger *accountant.Ledger

	loadsTotal     atomic.Uint64
	evictionsTotal atomic.Uint64
	ready          atomic.Bool

	monitorOnce sync.Once
	stopOnce    sync.Once
	stopMonitor chan struct{}
	monitorDone chan struct{}

	now func() time.Time
}

// New constructs a Registry from cfg, applying package defaults.
func New(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	r := &Registry{
		cfg:         cfg,
		models:      make(map[string]*LoadedModel),
		ledger:      accountant.NewLedger(cfg.CeilingBytes),
		stopMonitor: make(chan struct{}),
		monitorDone: make(chan struct{}),
		now:         time.Now,
	}
	if cfg.Logger != nil {
		r.log = cfg.Logger.With().Str("component", "registry").Logger()
	} else {
		r.log = zerolog.Nop()
	}
	if r.cfg.Estimate == nil {
		r.cfg.Estimate = accountant.Estimate
	}
	if r.cfg.Launchers == nil {
		r.cfg.Launchers = map[types.Category]Launcher{}
	}
	return r
}

// IsLoaded reports whether id has a resident entry.
func (r *Registry) IsLoaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[id]
	return ok
}

// Info returns a copy of the record for id.
func (r *Registry) Info(id string) (ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.models[id]
	if !ok {
		return ModelInfo{}, false
	}
	return lm.info(), true
}

// List returns copies of all records ordered by id.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	out := make([]ModelInfo, 0, len(r.models))
	for _, lm := range r.models {
		out = append(out, lm.info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ready reports whether the startup catalog has been processed.
func (r *Registry) Ready() bool { return r.ready.Load() }

// MarkReady flips Ready without a preload.
func (r *Registry) MarkReady() { r.ready.Store(true) }

// Usage returns used and ceiling bytes.
func (r *Registry) Usage() (used, ceiling int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Used(), r.ledger.Ceiling()
}

// touch records an access. Caller holds mu for writing.
func (r *Registry) touch(lm *LoadedModel) {
	lm.LastAccess = r.now()
	lm.AccessCount++
}
