package trace

import "sort"

type slabRecord struct {
	state recState
	event *SlabEvent // alloc event while allocated, most recent free while freed
}

// SlabTracker simulates per-object ownership inside named slab caches. It
// mirrors PageTracker at single-address granularity: slab objects are never
// range-expanded, and the same three-way branch applies on both paths.
type SlabTracker struct {
	objs map[uint64]slabRecord

	allocsByCache map[string]int
	freesByCache  map[string]int
	allocsBySize  map[uint64]int
}

// NewSlabTracker returns an empty tracker.
func NewSlabTracker() *SlabTracker {
	return &SlabTracker{
		objs:          make(map[uint64]slabRecord),
		allocsByCache: make(map[string]int),
		freesByCache:  make(map[string]int),
		allocsBySize:  make(map[uint64]int),
	}
}

// ObserveAlloc applies a slab allocation. A still-allocated object yields a
// SlabDoubleAlloc carrying both events' cache names and sizes, since slab
// anomalies are diagnosed by which cache regressed, not just by address.
// The new allocation always becomes the record of truth.
func (t *SlabTracker) ObserveAlloc(e SlabEvent) []Violation {
	ev := e
	var vs []Violation
	if rec, ok := t.objs[e.Addr]; ok && rec.state == recAllocated {
		vs = append(vs, Violation{
			Kind:      SlabDoubleAlloc,
			Addr:      e.Addr,
			Slab:      &ev,
			PriorSlab: rec.event,
		})
	}
	t.objs[e.Addr] = slabRecord{state: recAllocated, event: &ev}

	t.allocsByCache[e.Cache]++
	t.allocsBySize[e.Size]++
	return vs
}

// ObserveFree applies a slab free with the same branch table as the page
// tracker: freed records chain a SlabDoubleFree against the most recent
// free, absent records yield a SlabFreeWithoutAlloc, and the object always
// ends up freed and owned by this event.
func (t *SlabTracker) ObserveFree(e SlabEvent) []Violation {
	ev := e
	var vs []Violation
	rec, ok := t.objs[e.Addr]
	switch {
	case !ok:
		vs = append(vs, Violation{Kind: SlabFreeWithoutAlloc, Addr: e.Addr, Slab: &ev})
	case rec.state == recFreed:
		vs = append(vs, Violation{
			Kind:      SlabDoubleFree,
			Addr:      e.Addr,
			Slab:      &ev,
			PriorSlab: rec.event,
		})
	}
	t.objs[e.Addr] = slabRecord{state: recFreed, event: &ev}

	t.freesByCache[e.Cache]++
	return vs
}

// Allocations returns a snapshot of every currently allocated object address
// mapped to its owning allocation event.
func (t *SlabTracker) Allocations() map[uint64]SlabEvent {
	out := make(map[uint64]SlabEvent)
	for addr, rec := range t.objs {
		if rec.state == recAllocated {
			out[addr] = *rec.event
		}
	}
	return out
}

// Live returns the number of currently allocated objects.
func (t *SlabTracker) Live() int {
	n := 0
	for _, rec := range t.objs {
		if rec.state == recAllocated {
			n++
		}
	}
	return n
}

// Leaks returns the allocation events still owning an object at end of log,
// in source-line order.
func (t *SlabTracker) Leaks() []SlabEvent {
	var leaks []SlabEvent
	for _, rec := range t.objs {
		if rec.state == recAllocated {
			leaks = append(leaks, *rec.event)
		}
	}
	sort.Slice(leaks, func(i, j int) bool {
		if leaks[i].Line != leaks[j].Line {
			return leaks[i].Line < leaks[j].Line
		}
		return leaks[i].Addr < leaks[j].Addr
	})
	return leaks
}

// CacheStat aggregates event counts for one named cache.
type CacheStat struct {
	Cache  string `json:"cache"`
	Allocs int    `json:"allocs"`
	Frees  int    `json:"frees"`
}

// CacheStats returns per-cache statistics sorted by cache name.
func (t *SlabTracker) CacheStats() []CacheStat {
	caches := make(map[string]bool)
	for c := range t.allocsByCache {
		caches[c] = true
	}
	for c := range t.freesByCache {
		caches[c] = true
	}
	stats := make([]CacheStat, 0, len(caches))
	for c := range caches {
		stats = append(stats, CacheStat{
			Cache:  c,
			Allocs: t.allocsByCache[c],
			Frees:  t.freesByCache[c],
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Cache < stats[j].Cache })
	return stats
}

// SizeStat aggregates allocation counts for one object size.
type SizeStat struct {
	Size   uint64 `json:"size"`
	Allocs int    `json:"allocs"`
}

// SizeStats returns allocation counts per object size, sorted by size.
func (t *SlabTracker) SizeStats() []SizeStat {
	stats := make([]SizeStat, 0, len(t.allocsBySize))
	for s, n := range t.allocsBySize {
		stats = append(stats, SizeStat{Size: s, Allocs: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Size < stats[j].Size })
	return stats
}

// AllocEvents returns the total number of slab allocation events observed.
func (t *SlabTracker) AllocEvents() int {
	n := 0
	for _, c := range t.allocsByCache {
		n += c
	}
	return n
}

// FreeEvents returns the total number of slab free events observed.
func (t *SlabTracker) FreeEvents() int {
	n := 0
	for _, c := range t.freesByCache {
		n += c
	}
	return n
}
