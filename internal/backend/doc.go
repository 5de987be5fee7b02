// Package backend provides the category-specific launchers the registry
// loads models with: a llama.cpp server for language and text embedding
// models, a whisper.cpp server for transcription, a generic HTTP sidecar for
// embedding services, and an in-process llama.cpp engine behind the "llama"
// build tag.
//
// Out-of-process backends share Process, which owns port selection,
// readiness polling, stderr capture and graceful shutdown.
package backend
