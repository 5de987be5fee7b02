// Package service composes the registry, dispatcher and catalog into the
// operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelcore/internal/catalog"
	"modelcore/internal/dispatcher"
	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// Core implements httpapi.Service.
type Core struct {
	reg     *registry.Registry
	disp    *dispatcher.Dispatcher
	cat     *catalog.Catalog
	bus     *registry.Bus
	log     zerolog.Logger
	started time.Time
}

// Options wires the collaborators. Catalog and Bus may be nil.
type Options struct {
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Catalog    *catalog.Catalog
	Bus        *registry.Bus
	Logger     *zerolog.Logger
}

// New returns a Core over opts.
func New(opts Options) *Core {
	c := &Core{
		reg:     opts.Registry,
		disp:    opts.Dispatcher,
		cat:     opts.Catalog,
		bus:     opts.Bus,
		log:     zerolog.Nop(),
		started: time.Now(),
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "service").Logger()
	}
	if c.cat == nil {
		c.cat = catalog.New()
	}
	if c.bus == nil {
		c.bus = registry.NewBus()
	}
	return c
}

// Start launches the pressure monitor and preloads pinned and listed models
// in the background. Readiness flips once the preload finishes.
func (c *Core) Start(ctx context.Context, preload []string) {
	c.reg.StartMonitor(ctx)
	descs := c.cat.Startup(preload)
	go func() {
		start := time.Now()
		if err := c.reg.Preload(ctx, descs); err != nil {
			c.log.Warn().Err(err).Msg("event=preload_incomplete")
		}
		c.log.Info().Int("models", len(descs)).Dur("dur", time.Since(start)).Msg("event=ready")
	}()
}

// Close stops scheduling, then tears down every backend.
func (c *Core) Close(ctx context.Context) error {
	c.disp.Close()
	return c.reg.Close(ctx)
}

func (c *Core) Ready() bool { return c.reg.Ready() }

// ListModels returns resident models ordered by id.
func (c *Core) ListModels() []types.ModelStatus {
	infos := c.reg.List()
	out := make([]types.ModelStatus, 0, len(infos))
	for _, in := range infos {
		out = append(out, in.Status())
	}
	return out
}

// Model returns the resident record for id.
func (c *Core) Model(id string) (types.ModelStatus, bool) {
	in, ok := c.reg.Info(id)
	if !ok {
		return types.ModelStatus{}, false
	}
	return in.Status(), true
}

// Catalog lists every descriptor that can be loaded by id.
func (c *Core) Catalog() []types.ModelDescriptor { return c.cat.List() }

// Known reports whether id is in the catalog or resident.
func (c *Core) Known(id string) bool {
	if _, ok := c.cat.Lookup(id); ok {
		return true
	}
	return c.reg.IsLoaded(id)
}

// Load admits desc. A descriptor carrying only an id is completed from the
// catalog.
func (c *Core) Load(ctx context.Context, desc types.ModelDescriptor) (types.LoadResponse, error) {
	desc.ID = strings.TrimSpace(desc.ID)
	if desc.ID == "" {
		return types.LoadResponse{}, statusError{code: http.StatusBadRequest, msg: "id is required"}
	}
	if desc.Category == "" && desc.Path == "" {
		known, ok := c.cat.Lookup(desc.ID)
		if !ok {
			return types.LoadResponse{}, statusError{code: http.StatusNotFound, msg: "unknown model: " + desc.ID}
		}
		known.Pinned = known.Pinned || desc.Pinned
		desc = known
	}
	if _, err := desc.Normalize(); err != nil {
		return types.LoadResponse{}, statusError{code: http.StatusBadRequest, msg: err.Error()}
	}
	h, err := c.reg.Load(ctx, desc)
	if err != nil {
		return types.LoadResponse{}, err
	}
	return types.LoadResponse{ModelID: h.ModelID, SessionID: h.SessionID, Reused: h.Reused}, nil
}

// Unload removes id. Without force, busy models are left alone.
func (c *Core) Unload(ctx context.Context, id string, force bool) bool {
	return c.reg.Unload(ctx, id, force)
}

// Infer schedules one request.
func (c *Core) Infer(ctx context.Context, req dispatcher.Request) (any, error) {
	return c.disp.Execute(ctx, req)
}

// InferBatch schedules reqs, batching per model where possible.
func (c *Core) InferBatch(ctx context.Context, reqs []dispatcher.Request) dispatcher.BatchResult[any] {
	return c.disp.ExecuteBatch(ctx, reqs)
}

// Stats combines registry and pipeline snapshots.
func (c *Core) Stats() types.StatsResponse {
	return types.StatsResponse{
		Registry:      c.reg.Stats(),
		Pipeline:      c.disp.Stats(),
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
	}
}

// Subscribe streams registry events until cancel is called.
func (c *Core) Subscribe(buffer int) (<-chan registry.Event, func()) {
	return c.bus.Subscribe(buffer)
}

// statusError carries an HTTP status for request-level failures.
type statusError struct {
	code int
	msg  string
}

func (e statusError) Error() string   { return e.msg }
func (e statusError) StatusCode() int { return e.code }

// IsUnknownModel reports whether err came from a load of an id missing from
// the catalog.
func IsUnknownModel(err error) bool {
	var se statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}
