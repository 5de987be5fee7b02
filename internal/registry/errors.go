package registry

import (
	"errors"
	"fmt"
)

// insufficientResourcesError means a load cannot fit even after evicting every
// evictable model. Retrying later may succeed once in-flight work drains.
type insufficientResourcesError struct {
	modelID   string
	required  int64
	available int64
}

func (e insufficientResourcesError) Error() string {
	return fmt.Sprintf("insufficient resources: %s needs %d bytes, %d available after eviction", e.modelID, e.required, e.available)
}

func (insufficientResourcesError) Temporary() bool { return true }

// ErrInsufficientResources constructs an insufficient-resources error.
func ErrInsufficientResources(modelID string, required, available int64) error {
	return insufficientResourcesError{modelID: modelID, required: required, available: available}
}

// IsInsufficientResources reports whether err indicates the memory ceiling
// could not accommodate a load.
func IsInsufficientResources(err error) bool {
	var e insufficientResourcesError
	return errors.As(err, &e)
}

// modelNotLoadedError is returned for inference against a model with no
// resident entry, including one evicted after the request was queued.
type modelNotLoadedError struct{ id string }

func (e modelNotLoadedError) Error() string { return "model not loaded: " + e.id }

func (modelNotLoadedError) Temporary() bool { return true }

// ErrModelNotLoaded returns a model-not-loaded error for id.
func ErrModelNotLoaded(id string) error { return modelNotLoadedError{id: id} }

// IsModelNotLoaded reports whether err indicates a missing model.
func IsModelNotLoaded(err error) bool {
	var e modelNotLoadedError
	return errors.As(err, &e)
}

// loadFailureError wraps a backend that failed to start or become healthy,
// or a descriptor that can never load as given.
type loadFailureError struct {
	modelID string
	err     error
}

func (e loadFailureError) Error() string { return "load " + e.modelID + ": " + e.err.Error() }

func (e loadFailureError) Unwrap() error { return e.err }

func (loadFailureError) Temporary() bool { return false }

// ErrLoadFailure wraps cause as a load failure for modelID.
func ErrLoadFailure(modelID string, cause error) error {
	return loadFailureError{modelID: modelID, err: cause}
}

// IsLoadFailure reports whether err indicates a failed backend load.
func IsLoadFailure(err error) bool {
	var e loadFailureError
	return errors.As(err, &e)
}

// IsTemporary reports whether err is worth retrying later: resources are
// busy rather than the request being impossible as specified.
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}
