package types

import "encoding/json"

// LoadResponse is returned by POST /models.
type LoadResponse struct {
	// Model the handle refers to.
	// example: llama-3.1-8b-instruct-q4
	ModelID string `json:"model_id" example:"llama-3.1-8b-instruct-q4"`
	// Opaque session identifier of the loaded backend.
	// example: 3f0c1f2e-8f7a-4d2b-9c1e-7d8b2f6a9e01
	SessionID string `json:"session_id" example:"3f0c1f2e-8f7a-4d2b-9c1e-7d8b2f6a9e01"`
	// True when the model was already resident and no load happened.
	Reused bool `json:"reused"`
}

// ModelStatus summarizes one loaded model.
type ModelStatus struct {
	// example: whisper-base
	ModelID string `json:"model_id" example:"whisper-base"`
	// example: 3f0c1f2e-8f7a-4d2b-9c1e-7d8b2f6a9e01
	SessionID string `json:"session_id"`
	// example: transcription
	Category Category `json:"category" example:"transcription"`
	// Resident memory footprint in bytes.
	// example: 406847488
	ResidentBytes int64 `json:"resident_bytes" example:"406847488"`
	// Last access (unix seconds).
	// example: 1700000000
	LastAccessUnix int64 `json:"last_access_unix" example:"1700000000"`
	// Number of loads and inference calls that touched the model.
	// example: 12
	AccessCount uint64 `json:"access_count" example:"12"`
	Pinned      bool   `json:"pinned"`
	// Wall time the backend took to become ready.
	// example: 850
	LoadDurationMs int64 `json:"load_duration_ms" example:"850"`
	// Inference calls currently running against the model.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
}

// RegistryStats is the model lifecycle part of GET /stats.
type RegistryStats struct {
	// example: 2
	LoadedCount int `json:"loaded_count" example:"2"`
	// Aggregate resident memory in bytes.
	// example: 5368709120
	TotalMemory int64 `json:"total_memory" example:"5368709120"`
	// Remaining headroom below the ceiling in bytes.
	// example: 3221225472
	AvailableMemory int64 `json:"available_memory" example:"3221225472"`
	// Hard memory ceiling in bytes.
	// example: 8589934592
	CeilingBytes int64         `json:"ceiling_bytes" example:"8589934592"`
	Models       []ModelStatus `json:"models"`
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
}

// PipelineStats is the inference part of GET /stats.
type PipelineStats struct {
	// example: 100
	Total uint64 `json:"total" example:"100"`
	// example: 95
	Completed uint64 `json:"completed" example:"95"`
	// example: 3
	Failed uint64 `json:"failed" example:"3"`
	// example: 2
	Cancelled uint64 `json:"cancelled" example:"2"`
	// Queue depth per priority tier (high, normal, low).
	QueueDepth map[string]int `json:"queue_depth"`
	// Free execution slots per resource class (accelerator, general).
	AvailableSlots map[string]int `json:"available_slots"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Registry RegistryStats `json:"registry"`
	Pipeline PipelineStats `json:"pipeline"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// InferRequest is the payload of POST /infer.
type InferRequest struct {
	// Target model identifier.
	// example: llama-3.1-8b-instruct-q4
	Model string `json:"model" example:"llama-3.1-8b-instruct-q4"`
	// Request tags that drive priority (evidence, realtime, background).
	// example: ["evidence"]
	Tags []string `json:"tags,omitempty"`
	// Input kind: completion, chat, embedding or transcription.
	// example: completion
	Kind string `json:"kind" example:"completion"`
	// Kind-specific input document.
	Input json.RawMessage `json:"input" swaggertype:"object"`
}

// InferResponse wraps a single inference result.
type InferResponse struct {
	Output any `json:"output"`
}

// BatchInferRequest is the payload of POST /infer/batch.
type BatchInferRequest struct {
	Requests []InferRequest `json:"requests"`
}

// BatchInferResponse carries per-index results and errors. Results[i] is null
// when Errors has an entry for i.
type BatchInferResponse struct {
	Results      []any          `json:"results"`
	Errors       map[int]string `json:"errors"`
	Total        int            `json:"total"`
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
}

// EventMessage is one NDJSON line of GET /events.
type EventMessage struct {
	// example: load_completed
	Name    string         `json:"name" example:"load_completed"`
	ModelID string         `json:"model_id,omitempty"`
	Time    int64          `json:"time_unix_ms"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Whether retrying later may succeed.
	Temporary bool `json:"temporary,omitempty"`
}
