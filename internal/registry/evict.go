package registry

import "sort"

// EvictLeastRecentlyUsed evicts the least-recently-used unpinned idle model,
// ties broken by lowest access count. It reports whether a model was evicted.
func (r *Registry) EvictLeastRecentlyUsed() bool {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	return r.evictOne(EventEvicted, nil)
}

// evictOne removes one victim chosen by pickVictim and tears its backend
// down outside mu. Caller holds loadMu.
func (r *Registry) evictOne(reason string, filter func(*LoadedModel) bool) bool {
	r.mu.Lock()
	victim := r.pickVictim(filter)
	if victim == nil {
		r.mu.Unlock()
		return false
	}
	delete(r.models, victim.ID)
	r.ledger.Release(victim.ResidentBytes)
	used := r.ledger.Used()
	r.mu.Unlock()
	r.evictionsTotal.Add(1)

	if err := victim.Backend.Close(); err != nil {
		r.log.Warn().Str("model", victim.ID).Err(err).Msg("event=evict_close_error")
	}
	r.log.Info().Str("model", victim.ID).Str("reason", reason).Int64("bytes", victim.ResidentBytes).Int64("used", used).Msg("event=evicted")
	r.publish(reason, victim.ID, map[string]any{"bytes": victim.ResidentBytes, "access_count": victim.AccessCount})
	return true
}

// pickVictim selects the eviction candidate among unpinned models with no
// in-flight inference: oldest access first, then lowest access count, then
// id for determinism. Caller holds mu.
func (r *Registry) pickVictim(filter func(*LoadedModel) bool) *LoadedModel {
	cands := r.evictable(filter)
	if len(cands) == 0 {
		return nil
	}
	return cands[0]
}

// evictable returns eviction candidates in eviction order. Caller holds mu.
func (r *Registry) evictable(filter func(*LoadedModel) bool) []*LoadedModel {
	var cands []*LoadedModel
	for _, lm := range r.models {
		if lm.Pinned || lm.inflight > 0 {
			continue
		}
		if filter != nil && !filter(lm) {
			continue
		}
		cands = append(cands, lm)
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if !a.LastAccess.Equal(b.LastAccess) {
			return a.LastAccess.Before(b.LastAccess)
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount < b.AccessCount
		}
		return a.ID < b.ID
	})
	return cands
}
