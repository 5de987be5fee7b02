package catalog

import (
	"sort"
	"sync"

	"modelcore/pkg/types"
)

// Catalog indexes known descriptors by id so clients can load a model by
// name alone.
type Catalog struct {
	mu   sync.RWMutex
	byID map[string]types.ModelDescriptor
}

// New builds a catalog. Later descriptors with an id already present are
// ignored, so explicitly configured entries should come first.
func New(sets ...[]types.ModelDescriptor) *Catalog {
	c := &Catalog{byID: map[string]types.ModelDescriptor{}}
	for _, set := range sets {
		for _, d := range set {
			c.add(d)
		}
	}
	return c
}

func (c *Catalog) add(d types.ModelDescriptor) bool {
	n, err := d.Normalize()
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[n.ID]; ok {
		return false
	}
	c.byID[n.ID] = n
	return true
}

// Lookup returns the descriptor registered for id.
func (c *Catalog) Lookup(id string) (types.ModelDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	return d, ok
}

// List returns all descriptors ordered by id.
func (c *Catalog) List() []types.ModelDescriptor {
	c.mu.RLock()
	out := make([]types.ModelDescriptor, 0, len(c.byID))
	for _, d := range c.byID {
		out = append(out, d)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Startup returns the descriptors to load at boot: every pinned entry plus
// the ids listed in preload, in catalog order.
func (c *Catalog) Startup(preload []string) []types.ModelDescriptor {
	want := make(map[string]bool, len(preload))
	for _, id := range preload {
		want[id] = true
	}
	var out []types.ModelDescriptor
	for _, d := range c.List() {
		if d.Pinned || want[d.ID] {
			out = append(out, d)
		}
	}
	return out
}
