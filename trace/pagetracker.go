package trace

import (
	"sort"

	"github.com/allockit/allockit/internal/format"
)

// recState is the lifecycle state of a simulated record. The zero value is
// reserved so a map miss and an explicit state can't be confused.
type recState uint8

const (
	recAllocated recState = iota + 1
	recFreed
)

type pageRecord struct {
	state recState
	event *PageEvent // alloc event while allocated, most recent free while freed
}

// PageTracker simulates the buddy allocator's per-page ownership. Order-k
// events are expanded into 2^k individual page records; records are created
// lazily on first observation and never forgotten. The tracker exclusively
// owns its map; callers only see snapshots.
type PageTracker struct {
	pages    map[uint64]pageRecord
	arena    *BuddyRange
	maxOrder uint

	allocsByOrder map[uint]int
	freesByOrder  map[uint]int
	pagesByOrder  map[uint]uint64
	allocsByFlags map[uint64]int
}

// NewPageTracker returns an empty tracker. Orders above maxOrder are treated
// as range overflows: reported, with only the base page tracked.
func NewPageTracker(maxOrder uint) *PageTracker {
	return &PageTracker{
		pages:         make(map[uint64]pageRecord),
		maxOrder:      maxOrder,
		allocsByOrder: make(map[uint]int),
		freesByOrder:  make(map[uint]int),
		pagesByOrder:  make(map[uint]uint64),
		allocsByFlags: make(map[uint64]int),
	}
}

// ObserveBuddyRange records the declared buddy arena. Seeing it twice is not
// an error; the log's latest claim wins, mirroring replay semantics.
func (t *PageTracker) ObserveBuddyRange(r BuddyRange) {
	t.arena = &r
}

// Arena returns the declared buddy arena, if one has been observed.
func (t *PageTracker) Arena() (BuddyRange, bool) {
	if t.arena == nil {
		return BuddyRange{}, false
	}
	return *t.arena, true
}

// overflows reports whether e cannot be expanded page by page, either
// because the span wraps the address space or exceeds the order ceiling.
func (t *PageTracker) overflows(e PageEvent) bool {
	return e.Order > t.maxOrder || e.Overflows()
}

// expand returns the page addresses to track for e, falling back to the
// base page alone when full expansion is impossible.
func (t *PageTracker) expand(e PageEvent) []uint64 {
	if t.overflows(e) {
		return []uint64{e.Addr}
	}
	return e.Pages()
}

// shape reports input-shape anomalies on the event itself: an unaligned base
// address or an order too large to expand. The event is still applied.
func (t *PageTracker) shape(e *PageEvent) []Violation {
	var vs []Violation
	if !e.Aligned() {
		vs = append(vs, Violation{Kind: PageUnaligned, Addr: e.Addr, Page: e})
	}
	if t.overflows(*e) {
		vs = append(vs, Violation{Kind: PageRangeOverflow, Addr: e.Addr, Page: e})
	}
	return vs
}

// ObserveAlloc applies a page allocation. For every expanded page address a
// still-allocated record yields a PageDoubleAlloc against the prior owner;
// the new allocation always wins and becomes the record of truth, matching
// the log's chronological authority.
func (t *PageTracker) ObserveAlloc(e PageEvent) []Violation {
	ev := e // single copy shared by all records for this event
	vs := t.shape(&ev)
	for _, addr := range t.expand(e) {
		if rec, ok := t.pages[addr]; ok && rec.state == recAllocated {
			vs = append(vs, Violation{
				Kind:      PageDoubleAlloc,
				Addr:      addr,
				Page:      &ev,
				PriorPage: rec.event,
			})
		}
		t.pages[addr] = pageRecord{state: recAllocated, event: &ev}
	}

	t.allocsByOrder[e.Order]++
	t.allocsByFlags[e.Flags]++
	if t.overflows(e) {
		t.pagesByOrder[e.Order]++
	} else {
		t.pagesByOrder[e.Order] += e.PageCount()
	}
	return vs
}

// ObserveFree applies a page free. Per expanded address: allocated records
// transition to freed silently, freed records yield a PageDoubleFree against
// the most recent free, absent records yield a PageFreeWithoutAlloc. The
// address always ends up freed and owned by this event, so a third free
// chains against the second rather than the first.
func (t *PageTracker) ObserveFree(e PageEvent) []Violation {
	ev := e
	vs := t.shape(&ev)
	for _, addr := range t.expand(e) {
		rec, ok := t.pages[addr]
		switch {
		case !ok:
			vs = append(vs, Violation{Kind: PageFreeWithoutAlloc, Addr: addr, Page: &ev})
		case rec.state == recFreed:
			vs = append(vs, Violation{
				Kind:      PageDoubleFree,
				Addr:      addr,
				Page:      &ev,
				PriorPage: rec.event,
			})
		}
		t.pages[addr] = pageRecord{state: recFreed, event: &ev}
	}

	t.freesByOrder[e.Order]++
	return vs
}

// Owner returns the allocation event owning the page that contains addr,
// if that page is currently allocated. The event is the one that allocated
// the whole multi-page block, so callers can recover its order and flags.
func (t *PageTracker) Owner(addr uint64) (PageEvent, bool) {
	rec, ok := t.pages[format.PageBase(addr)]
	if !ok || rec.state != recAllocated {
		return PageEvent{}, false
	}
	return *rec.event, true
}

// Allocations returns a snapshot of every currently allocated page address
// mapped to its owning allocation event.
func (t *PageTracker) Allocations() map[uint64]PageEvent {
	out := make(map[uint64]PageEvent)
	for addr, rec := range t.pages {
		if rec.state == recAllocated {
			out[addr] = *rec.event
		}
	}
	return out
}

// Live returns the number of currently allocated page records.
func (t *PageTracker) Live() int {
	n := 0
	for _, rec := range t.pages {
		if rec.state == recAllocated {
			n++
		}
	}
	return n
}

// Leaks returns the distinct allocation events that still own at least one
// page at end of log, in source-line order. These are leak candidates, not
// violations.
func (t *PageTracker) Leaks() []PageEvent {
	seen := make(map[*PageEvent]bool)
	var leaks []PageEvent
	for _, rec := range t.pages {
		if rec.state == recAllocated && !seen[rec.event] {
			seen[rec.event] = true
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

// OrderStat aggregates event counts for one buddy order.
type OrderStat struct {
	Order  uint   `json:"order"`
	Allocs int    `json:"allocs"`
	Frees  int    `json:"frees"`
	Pages  uint64 `json:"pages"` // total pages covered by allocations
}

// OrderStats returns per-order statistics sorted by order. Orders seen only
// on the free side are included with zero allocs.
func (t *PageTracker) OrderStats() []OrderStat {
	orders := make(map[uint]bool)
	for o := range t.allocsByOrder {
		orders[o] = true
	}
	for o := range t.freesByOrder {
		orders[o] = true
	}
	stats := make([]OrderStat, 0, len(orders))
	for o := range orders {
		stats = append(stats, OrderStat{
			Order:  o,
			Allocs: t.allocsByOrder[o],
			Frees:  t.freesByOrder[o],
			Pages:  t.pagesByOrder[o],
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Order < stats[j].Order })
	return stats
}

// FlagStat aggregates allocation counts for one flags value.
type FlagStat struct {
	Flags  uint64 `json:"flags"`
	Allocs int    `json:"allocs"`
}

// FlagStats returns allocation counts per flags value, sorted by value.
func (t *PageTracker) FlagStats() []FlagStat {
	stats := make([]FlagStat, 0, len(t.allocsByFlags))
	for f, n := range t.allocsByFlags {
		stats = append(stats, FlagStat{Flags: f, Allocs: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Flags < stats[j].Flags })
	return stats
}

// AllocEvents returns the total number of allocation events observed.
func (t *PageTracker) AllocEvents() int {
	n := 0
	for _, c := range t.allocsByOrder {
		n += c
	}
	return n
}

// FreeEvents returns the total number of free events observed.
func (t *PageTracker) FreeEvents() int {
	n := 0
	for _, c := range t.freesByOrder {
		n += c
	}
	return n
}
