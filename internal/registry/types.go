package registry

import (
	"time"

	"modelcore/pkg/types"
)

// Handle references a loaded model. It stays valid until the model is
// unloaded or evicted; callers re-check with IsLoaded before relying on it.
type Handle struct {
	ModelID   string
	SessionID string
	// Reused is true when Load found the model already resident.
	Reused bool
}

// LoadedModel is the runtime record of a resident model. Only the registry
// creates or mutates it.
type LoadedModel struct {
	ID            string
	SessionID     string
	Category      types.Category
	Backend       Backend
	ResidentBytes int64
	LastAccess    time.Time
	AccessCount   uint64
	Pinned        bool
	LoadDuration  time.Duration
	Descriptor    types.ModelDescriptor

	// EstimatedBytes is the admission cost; ResidentBytes never drops below it.
	EstimatedBytes int64

	inflight int
}

// ModelInfo is a read-only copy of a LoadedModel.
type ModelInfo struct {
	ID            string
	SessionID     string
	Category      types.Category
	ResidentBytes int64
	LastAccess    time.Time
	AccessCount   uint64
	Pinned        bool
	LoadDuration  time.Duration
	Inflight      int
}

func (lm *LoadedModel) info() ModelInfo {
	return ModelInfo{
		ID:            lm.ID,
		SessionID:     lm.SessionID,
		Category:      lm.Category,
		ResidentBytes: lm.ResidentBytes,
		LastAccess:    lm.LastAccess,
		AccessCount:   lm.AccessCount,
		Pinned:        lm.Pinned,
		LoadDuration:  lm.LoadDuration,
		Inflight:      lm.inflight,
	}
}

// Status converts the record to its wire form.
func (in ModelInfo) Status() types.ModelStatus {
	return types.ModelStatus{
		ModelID:        in.ID,
		SessionID:      in.SessionID,
		Category:       in.Category,
		ResidentBytes:  in.ResidentBytes,
		LastAccessUnix: in.LastAccess.Unix(),
		AccessCount:    in.AccessCount,
		Pinned:         in.Pinned,
		LoadDurationMs: in.LoadDuration.Milliseconds(),
		Inflight:       in.Inflight,
	}
}

func (lm *LoadedModel) handle(reused bool) Handle {
	return Handle{ModelID: lm.ID, SessionID: lm.SessionID, Reused: reused}
}
