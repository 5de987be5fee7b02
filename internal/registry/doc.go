// Package registry owns the lifecycle of loaded models under a hard memory
// ceiling. It is structured into small files by concern:
//
//   - registry.go: Registry type, constructor, lookups (IsLoaded, Info, Ready).
//   - config.go: Config and package defaults.
//   - types.go: LoadedModel, Handle, ModelInfo.
//   - launcher.go: Launcher/Backend collaborator interfaces.
//   - errors.go: typed errors and IsXxx helpers.
//   - load.go: Load and Preload (check-evict-load critical section).
//   - evict.go: victim selection and EvictLeastRecentlyUsed.
//   - unload.go: Unload and Close.
//   - run.go: inference leases (Run, RunBatch) used by the dispatcher.
//   - monitor.go: background memory pressure monitor.
//   - status.go: Stats snapshot.
//   - events.go, eventbus.go, eventpub_memory.go: lifecycle notifications.
//
// Locking: loadMu serializes every decision that changes memory accounting
// (load, evict, unload, footprint refresh). mu guards the model table and
// ledger for readers so inference against resident models never waits on a
// slow backend start. Lock order is loadMu then mu; mu is never held across a
// backend call.
package registry
