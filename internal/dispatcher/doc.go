// Package dispatcher queues inference requests by priority tier and runs
// them on a fixed worker pool against models resident in the registry.
//
//   - request.go: Request, priority tiers, resource classes and heuristics.
//   - dispatcher.go: Dispatcher, worker loop, Close.
//   - execute.go: Execute and ExecuteBatch, including generic variants.
//   - slot.go: single-assignment result slot.
//   - errors.go: ExecutionFailure and Cancelled.
//   - stats.go: pipeline counters snapshot.
//
// Workers poll High, then Normal, then Low without blocking and sleep for a
// short idle wait when all three are empty. A dequeued request must acquire
// the semaphore of its resource class before it reaches the runner; the
// semaphore is released whatever the outcome.
package dispatcher
