package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"modelcore/pkg/types"
)

// listModels godoc
// @Summary      List resident models
// @Tags         models
// @Produce      json
// @Success      200  {object}  map[string][]types.ModelStatus
// @Router       /models [get]
func (a *api) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": a.svc.ListModels()})
}

// catalog godoc
// @Summary      List loadable models
// @Tags         models
// @Produce      json
// @Success      200  {object}  map[string][]types.ModelDescriptor
// @Router       /catalog [get]
func (a *api) catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": a.svc.Catalog()})
}

// loadModel godoc
// @Summary      Load a model
// @Description  Loads a descriptor, or a catalog entry when only the id is given. Evicts idle models as needed.
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        body  body      types.ModelDescriptor  true  "Model descriptor"
// @Success      200   {object}  types.LoadResponse  "already resident"
// @Success      201   {object}  types.LoadResponse  "loaded"
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      502   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /models [post]
func (a *api) loadModel(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var desc types.ModelDescriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctx, cancel := requestContext(r, 0)
	defer cancel()
	resp, err := a.svc.Load(ctx, desc)
	if err != nil {
		writeError(w, err, false)
		return
	}
	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// getModel godoc
// @Summary      Describe a resident model
// @Tags         models
// @Produce      json
// @Param        id   path      string  true  "Model id"
// @Success      200  {object}  types.ModelStatus
// @Failure      404  {object}  types.ErrorResponse
// @Router       /models/{id} [get]
func (a *api) getModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := a.svc.Model(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "model not loaded: "+id)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// unloadModel godoc
// @Summary      Unload a model
// @Description  Refuses busy models unless force=1.
// @Tags         models
// @Param        id     path   string  true   "Model id"
// @Param        force  query  bool    false  "Unload even with inference in flight"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Failure      409  {object}  types.ErrorResponse
// @Router       /models/{id} [delete]
func (a *api) unloadModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.svc.Model(id); !ok {
		writeJSONError(w, http.StatusNotFound, "model not loaded: "+id)
		return
	}
	force := isTruthy(r.URL.Query().Get("force"))
	ctx, cancel := requestContext(r, 0)
	defer cancel()
	if !a.svc.Unload(ctx, id, force) {
		if _, still := a.svc.Model(id); still {
			writeJSONError(w, http.StatusConflict, "model busy: "+id)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "yes":
		return true
	}
	return false
}
