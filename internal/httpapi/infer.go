package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"modelcore/internal/backend"
	"modelcore/internal/dispatcher"
	"modelcore/pkg/types"
)

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

// toRequest validates req and decodes its input. Without an explicit kind the
// resident model's category decides.
func (a *api) toRequest(req types.InferRequest) (dispatcher.Request, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return dispatcher.Request{}, badRequest("model is required")
	}
	kind := req.Kind
	if kind == "" {
		if st, ok := a.svc.Model(model); ok {
			kind = backend.KindFor(st.Category)
		}
	}
	in, err := backend.DecodeInput(kind, req.Input)
	if err != nil {
		return dispatcher.Request{}, badRequest(err.Error())
	}
	return dispatcher.Request{ModelID: model, Input: in, Tags: req.Tags}, nil
}

type badRequest string

func (e badRequest) Error() string   { return string(e) }
func (e badRequest) StatusCode() int { return http.StatusBadRequest }

// infer godoc
// @Summary      Run one inference
// @Description  Queues the request by priority (tags) and waits for the result. The model must be resident.
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        body  body      types.InferRequest  true  "Inference request"
// @Success      200   {object}  types.InferResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse  "model known but not resident"
// @Failure      500   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /infer [post]
func (a *api) infer(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body types.InferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := a.toRequest(body)
	if err != nil {
		writeError(w, err, false)
		return
	}
	ctx, cancel := requestContext(r, inferTimeout)
	defer cancel()
	out, err := a.svc.Infer(ctx, req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err, a.svc.Known(req.ModelID))
		return
	}
	writeJSON(w, http.StatusOK, types.InferResponse{Output: out})
}

// inferBatch godoc
// @Summary      Run many inferences
// @Description  Requests for batchable models are grouped into one backend call. Failures are reported per index.
// @Tags         inference
// @Accept       json
// @Produce      json
// @Param        body  body      types.BatchInferRequest  true  "Requests"
// @Success      200   {object}  types.BatchInferResponse
// @Failure      400   {object}  types.ErrorResponse
// @Router       /infer/batch [post]
func (a *api) inferBatch(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body types.BatchInferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Requests) == 0 {
		writeJSONError(w, http.StatusBadRequest, "requests are required")
		return
	}

	resp := types.BatchInferResponse{
		Results: make([]any, len(body.Requests)),
		Errors:  map[int]string{},
		Total:   len(body.Requests),
	}
	// Invalid entries fail on their own; the rest keep their positions.
	var (
		reqs []dispatcher.Request
		pos  []int
	)
	for i, item := range body.Requests {
		req, err := a.toRequest(item)
		if err != nil {
			resp.Errors[i] = err.Error()
			continue
		}
		reqs = append(reqs, req)
		pos = append(pos, i)
	}

	if len(reqs) > 0 {
		ctx, cancel := requestContext(r, inferTimeout)
		defer cancel()
		res := a.svc.InferBatch(ctx, reqs)
		if r.Context().Err() != nil {
			return
		}
		for k, i := range pos {
			if err, failed := res.Errors[k]; failed {
				resp.Errors[i] = err.Error()
				continue
			}
			resp.Results[i] = res.Results[k]
		}
	}
	resp.FailureCount = len(resp.Errors)
	resp.SuccessCount = resp.Total - resp.FailureCount
	writeJSON(w, http.StatusOK, resp)
}
