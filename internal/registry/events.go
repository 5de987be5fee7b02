package registry

import "time"

// Event names published by the registry.
const (
	EventLoadStarted      = "load_started"
	EventLoadProgress     = "load_progress"
	EventLoadCompleted    = "load_completed"
	EventLoadFailed       = "load_failed"
	EventUnloaded         = "unloaded"
	EventEvicted          = "evicted"
	EventPressureEvicted  = "pressure_evicted"
	EventFootprintChanged = "footprint_changed"
)

// Event represents a registry lifecycle event.
// Minimal and stable: name + model ID and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Time    time.Time
	Fields  map[string]any
}

// EventPublisher receives events from the registry. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

func (r *Registry) publish(name, modelID string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	r.cfg.Publisher.Publish(Event{Name: name, ModelID: modelID, Time: r.now(), Fields: fields})
}
