package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"modelcore/internal/backend"
	"modelcore/internal/dispatcher"
	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// statusClientClosedRequest marks a request the caller abandoned. Nothing is
// written for it.
const statusClientClosedRequest = 499

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case registry.IsInsufficientResources(err), errors.Is(err, dispatcher.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case dispatcher.IsCancelled(err), errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case registry.IsModelNotLoaded(err):
		return http.StatusNotFound
	case registry.IsLoadFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, backend.ErrUnsupportedInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func rejectionReason(err error) string {
	if errors.Is(err, dispatcher.ErrClosed) {
		return "shutting_down"
	}
	return "insufficient_resources"
}

// writeError writes err with its mapped status. known reports whether the
// model named by the request exists in the catalog, which turns a 404 for a
// non-resident model into 409.
func writeError(w http.ResponseWriter, err error, known bool) {
	code := statusFor(err)
	switch code {
	case statusClientClosedRequest:
		w.WriteHeader(code)
		return
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		IncrementRejection(rejectionReason(err))
	case http.StatusNotFound:
		if known && registry.IsModelNotLoaded(err) {
			code = http.StatusConflict
		}
	}
	writeJSONErrorTemp(w, code, err.Error(), registry.IsTemporary(err))
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSONErrorTemp(w, status, msg, false)
}

func writeJSONErrorTemp(w http.ResponseWriter, status int, msg string, temporary bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status, Temporary: temporary})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Err(err).Msg("encode response")
	}
}
