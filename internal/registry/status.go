package registry

import (
	"modelcore/pkg/types"
)

// Stats returns a point-in-time snapshot for GET /stats.
func (r *Registry) Stats() types.RegistryStats {
	infos := r.List()
	r.mu.RLock()
	used, avail, ceiling := r.ledger.Used(), r.ledger.Available(), r.ledger.Ceiling()
	r.mu.RUnlock()
	st := types.RegistryStats{
		LoadedCount:     len(infos),
		TotalMemory:     used,
		AvailableMemory: avail,
		CeilingBytes:    ceiling,
		Models:          make([]types.ModelStatus, 0, len(infos)),
		LoadsTotal:      r.loadsTotal.Load(),
		EvictionsTotal:  r.evictionsTotal.Load(),
	}
	for _, in := range infos {
		st.Models = append(st.Models, in.Status())
	}
	return st
}
