package httpapi

import "time"

// defaultMaxBodyBytes leaves room for base64 audio in transcription requests.
const defaultMaxBodyBytes int64 = 32 << 20

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// inferTimeout bounds /infer and /infer/batch. Zero means no limit beyond
// server and connection timeouts.
var inferTimeout time.Duration

// SetInferTimeout sets the infer timeout (0 disables).
func SetInferTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	inferTimeout = d
}

// retryAfterSeconds is advertised on 503 responses.
var retryAfterSeconds = 5

// SetRetryAfter sets the Retry-After hint for temporary failures.
func SetRetryAfter(d time.Duration) {
	if s := int(d.Seconds()); s > 0 {
		retryAfterSeconds = s
	}
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
