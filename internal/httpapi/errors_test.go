package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelcore/internal/backend"
	"modelcore/internal/dispatcher"
	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"http error", mockHTTPError{"teapot", 418}, 418},
		{"insufficient", registry.ErrInsufficientResources("m", 10, 1), http.StatusServiceUnavailable},
		{"wrapped insufficient", fmt.Errorf("load: %w", registry.ErrInsufficientResources("m", 10, 1)), http.StatusServiceUnavailable},
		{"closed", dispatcher.ErrCancelled("r", dispatcher.ErrClosed), http.StatusServiceUnavailable},
		{"timeout", dispatcher.ErrCancelled("r", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"cancelled", dispatcher.ErrCancelled("r", context.Canceled), statusClientClosedRequest},
		{"not loaded", registry.ErrModelNotLoaded("m"), http.StatusNotFound},
		{"load failure", registry.ErrLoadFailure("m", errors.New("exit 1")), http.StatusBadGateway},
		{"unsupported", dispatcher.ErrExecutionFailure("r", "m", fmt.Errorf("x: %w", backend.ErrUnsupportedInput)), http.StatusBadRequest},
		{"execution", dispatcher.ErrExecutionFailure("r", "m", errors.New("boom")), http.StatusInternalServerError},
		{"other", errors.New("?"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, registry.ErrInsufficientResources("m", 10, 1), false)
	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") == "" {
		t.Fatalf("code=%d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !body.Temporary || body.Code != http.StatusServiceUnavailable {
		t.Fatalf("body=%+v", body)
	}

	w = httptest.NewRecorder()
	writeError(w, registry.ErrModelNotLoaded("m"), true)
	if w.Code != http.StatusConflict {
		t.Fatalf("known model should give 409, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	writeError(w, dispatcher.ErrCancelled("r", context.Canceled), false)
	if w.Code != statusClientClosedRequest || w.Body.Len() != 0 {
		t.Fatalf("cancelled: code=%d body=%q", w.Code, w.Body.String())
	}
}
