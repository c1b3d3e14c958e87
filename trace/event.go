package trace

import (
	"fmt"

	"github.com/allockit/allockit/internal/format"
)

// EventKind distinguishes allocation events from release events.
type EventKind uint8

const (
	// Alloc marks a page_alloc or slab_alloc line.
	Alloc EventKind = iota
	// Free marks a page_free or slab_free line.
	Free
)

func (k EventKind) String() string {
	switch k {
	case Alloc:
		return "alloc"
	case Free:
		return "free"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one parsed log line: a PageEvent, a SlabEvent, or a BuddyRange.
type Event interface {
	// SourceLine returns the 1-based line number the event was parsed from.
	SourceLine() int
}

// maxSafeOrder is the largest buddy order whose byte span still fits in a
// uint64. Anything above it cannot be expanded without wrapping.
const maxSafeOrder = 63 - format.PageShift

// PageEvent is a single page_alloc or page_free line from the buddy
// allocator. Addr is the base address of the block; an order-k event covers
// 2^k contiguous pages starting there.
type PageEvent struct {
	Kind  EventKind `json:"kind"`
	Order uint      `json:"order"`
	Flags uint64    `json:"flags"`
	Addr  uint64    `json:"page"`
	Line  int       `json:"line"`
}

// SourceLine implements Event.
func (e PageEvent) SourceLine() int { return e.Line }

// PageCount returns the number of pages the event covers (1 << Order).
// Only meaningful when Overflows reports false.
func (e PageEvent) PageCount() uint64 { return 1 << e.Order }

// Span returns the byte length of the block (PageCount * page size).
// Only meaningful when Overflows reports false.
func (e PageEvent) Span() uint64 { return uint64(1) << (e.Order + format.PageShift) }

// End returns the first byte past the block, so the block occupies
// [Addr, End). Only meaningful when Overflows reports false.
func (e PageEvent) End() uint64 { return e.Addr + e.Span() }

// Aligned reports whether the base address sits on a page boundary.
func (e PageEvent) Aligned() bool { return format.PageAligned(e.Addr) }

// Overflows reports whether expanding the event would walk off the end of
// the 64-bit address space. Such events are reportable anomalies, not
// undefined behavior.
func (e PageEvent) Overflows() bool {
	if e.Order > maxSafeOrder {
		return true
	}
	return e.Addr+e.Span() < e.Addr
}

// Pages expands the event into its individual page addresses: exactly
// 1<<Order values, Addr+i*4096 in ascending order. Allocation and free
// handling share this helper so the two paths cannot drift apart.
// The caller must rule out Overflows first.
func (e PageEvent) Pages() []uint64 {
	n := e.PageCount()
	pages := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		pages = append(pages, e.Addr+i*format.PageSize)
	}
	return pages
}

func (e PageEvent) String() string {
	return fmt.Sprintf("page_%s line %d: order %d, flags 0x%x, page 0x%x",
		e.Kind, e.Line, e.Order, e.Flags, e.Addr)
}

// SlabEvent is a single slab_alloc or slab_free line. Slab objects are
// tracked at single-address granularity; CacheHandle distinguishes cache
// instances that share a name.
type SlabEvent struct {
	Kind        EventKind `json:"kind"`
	Cache       string    `json:"cache"`
	CacheHandle uint64    `json:"cache_handle"`
	Addr        uint64    `json:"obj"`
	Size        uint64    `json:"size"`
	Line        int       `json:"line"`
}

// SourceLine implements Event.
func (e SlabEvent) SourceLine() int { return e.Line }

func (e SlabEvent) String() string {
	return fmt.Sprintf("slab_%s line %d: cache %s(0x%x), obj 0x%x, size %d",
		e.Kind, e.Line, e.Cache, e.CacheHandle, e.Addr, e.Size)
}

// BuddyRange is the page_buddy_init marker declaring the arena the buddy
// allocator manages. At most one is expected per log; when absent, arena
// containment checks are skipped.
type BuddyRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Line  int    `json:"line"`
}

// SourceLine implements Event.
func (r BuddyRange) SourceLine() int { return r.Line }

// Contains reports whether [start, end) lies entirely within the arena.
func (r BuddyRange) Contains(start, end uint64) bool {
	return start >= r.Start && end <= r.End
}

func (r BuddyRange) String() string {
	return fmt.Sprintf("buddy_init line %d: 0x%x to 0x%x", r.Line, r.Start, r.End)
}
