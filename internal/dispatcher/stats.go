package dispatcher

import "modelcore/pkg/types"

// Stats returns a point-in-time snapshot for observability. Batched
// requests count individually.
func (d *Dispatcher) Stats() types.PipelineStats {
	st := types.PipelineStats{
		Total:          d.total.Load(),
		Completed:      d.completed.Load(),
		Failed:         d.failed.Load(),
		Cancelled:      d.cancelled.Load(),
		QueueDepth:     make(map[string]int, numPriorities),
		AvailableSlots: make(map[string]int, numClasses),
	}
	d.parkMu.Lock()
	for p := range d.queues {
		n := len(d.queues[p])
		for _, j := range d.parked[p] {
			if !j.slot.settled() {
				n++
			}
		}
		st.QueueDepth[Priority(p).String()] = n
	}
	d.parkMu.Unlock()
	for c := range d.sems {
		st.AvailableSlots[Class(c).String()] = int(d.slots[c] - d.inUse[c].Load())
	}
	return st
}
