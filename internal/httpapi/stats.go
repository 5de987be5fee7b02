package httpapi

import (
	"encoding/json"
	"net/http"

	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// stats godoc
// @Summary      Registry and pipeline statistics
// @Tags         observability
// @Produce      json
// @Success      200  {object}  types.StatsResponse
// @Router       /stats [get]
func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Stats())
}

// eventBuffer is the per-subscriber buffer of GET /events; slower clients
// miss events rather than stall the registry.
const eventBuffer = 256

// events godoc
// @Summary      Stream registry events
// @Description  NDJSON stream of load, unload, eviction and progress events. Optional model filter.
// @Tags         observability
// @Produce      application/x-ndjson
// @Param        model  query  string  false  "Only events for this model"
// @Success      200  {object}  types.EventMessage
// @Router       /events [get]
func (a *api) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	filter := r.URL.Query().Get("model")
	ch, cancel := a.svc.Subscribe(eventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-serverBaseCtx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if filter != "" && ev.ModelID != filter {
				continue
			}
			if err := enc.Encode(eventMessage(ev)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func eventMessage(ev registry.Event) types.EventMessage {
	return types.EventMessage{
		Name:    ev.Name,
		ModelID: ev.ModelID,
		Time:    ev.Time.UnixMilli(),
		Fields:  ev.Fields,
	}
}
