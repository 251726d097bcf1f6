package runner

import (
	"context"
	"log/slog"
	"slices"

	"github.com/pthm-cable/weathering/scene"
	"github.com/pthm-cable/weathering/sim"
	"github.com/pthm-cable/weathering/spec"
	"github.com/pthm-cable/weathering/surf"
	"github.com/pthm-cable/weathering/tex"
)

type tableKey struct {
	entity int
	width  int
	height int
	count  int
	bleed  int
}

func keyFor(entity, width, height int, lookup spec.SurfelLookup, bleed int) (tableKey, error) {
	if lookup.Within != nil {
		return tableKey{}, ErrWithinLookupUnsupported
	}
	count := spec.DefaultNearestCount
	if lookup.Nearest != nil {
		count = lookup.Nearest.Count
	}
	return tableKey{entity: entity, width: width, height: height, count: count, bleed: bleed}, nil
}

// SurfelTableCache memoizes surfel tables per entity, resolution, surfel
// count and island bleed. Tables are never evicted: keys are bounded by the
// number of entities times the distinct resolutions of the configured
// effects, and geometry does not change during a run.
type SurfelTableCache struct {
	tables  map[tableKey]tex.SurfelTable
	threads int
}

// NewSurfelTableCache returns an empty cache building tables on up to
// threads goroutines.
func NewSurfelTableCache(threads int) *SurfelTableCache {
	return &SurfelTableCache{tables: make(map[tableKey]tex.SurfelTable), threads: max(1, threads)}
}

// Prepare builds the table for the key if it is not cached yet.
func (c *SurfelTableCache) Prepare(ctx context.Context, entityIdx, width, height int, lookup spec.SurfelLookup, bleed int, entities []scene.Entity, surface *sim.Surface) error {
	key, err := keyFor(entityIdx, width, height, lookup, bleed)
	if err != nil {
		return err
	}
	if _, ok := c.tables[key]; ok {
		return nil
	}

	ent := entities[entityIdx]
	slog.Debug("building surfel table",
		"entity", ent.Name, "width", width, "height", height, "nearest", key.count, "bleed", bleed)
	table, err := tex.BuildSurfelTable(ctx, ent.Mesh, surface, ownedBy(surface, entityIdx), key.count, width, height, bleed, c.threads)
	if err != nil {
		return err
	}
	c.tables[key] = table
	return nil
}

// ownedBy restricts lookups to the surfels sampled from entity, so texels
// near a touching entity do not pick up its concentrations. An entity that
// owns no surfels reads the nearest surfels of any entity.
func ownedBy(surface *sim.Surface, entity int) func(idx int) bool {
	samples := surface.Samples
	if !slices.ContainsFunc(samples, func(s surf.Surfel[sim.SurfelData]) bool { return s.Data.Entity == entity }) {
		return nil
	}
	return func(idx int) bool { return samples[idx].Data.Entity == entity }
}

// Lookup returns a prepared table or a *CacheMissError.
func (c *SurfelTableCache) Lookup(entityIdx, width, height int, lookup spec.SurfelLookup, bleed int) (tex.SurfelTable, error) {
	key, err := keyFor(entityIdx, width, height, lookup, bleed)
	if err != nil {
		return tex.SurfelTable{}, err
	}
	table, ok := c.tables[key]
	if !ok {
		return tex.SurfelTable{}, &CacheMissError{Entity: entityIdx, Width: width, Height: height, Count: key.count, Bleed: bleed}
	}
	return table, nil
}

// MustLookup is Lookup for keys that are known to be prepared. A miss is a
// programming error and panics.
func (c *SurfelTableCache) MustLookup(entityIdx, width, height int, lookup spec.SurfelLookup, bleed int) tex.SurfelTable {
	table, err := c.Lookup(entityIdx, width, height, lookup, bleed)
	if err != nil {
		panic(err)
	}
	return table
}

// Len returns the number of cached tables.
func (c *SurfelTableCache) Len() int { return len(c.tables) }
