package trace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allockit/allockit/trace"
)

func pageAlloc(line int, order uint, flags, addr uint64) trace.PageEvent {
	return trace.PageEvent{Kind: trace.Alloc, Order: order, Flags: flags, Addr: addr, Line: line}
}

func pageFree(line int, order uint, flags, addr uint64) trace.PageEvent {
	return trace.PageEvent{Kind: trace.Free, Order: order, Flags: flags, Addr: addr, Line: line}
}

func TestPageTrackerAllocFreeClean(t *testing.T) {
	pt := trace.NewPageTracker(20)

	require.Empty(t, pt.ObserveAlloc(pageAlloc(1, 0, 0x80, 0x3000)))
	require.Empty(t, pt.ObserveFree(pageFree(2, 0, 0x80, 0x3000)))

	require.Equal(t, 0, pt.Live())
	require.Empty(t, pt.Leaks())

	// The record stays behind as freed: a later free is a double free,
	// not a free-without-alloc.
	vs := pt.ObserveFree(pageFree(3, 0, 0x80, 0x3000))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageDoubleFree, vs[0].Kind)
}

func TestPageTrackerDoubleAlloc(t *testing.T) {
	pt := trace.NewPageTracker(20)

	first := pageAlloc(10, 0, 0x80, 0x3000)
	second := pageAlloc(20, 0, 0x10, 0x3000)

	require.Empty(t, pt.ObserveAlloc(first))
	vs := pt.ObserveAlloc(second)
	require.Len(t, vs, 1)

	v := vs[0]
	require.Equal(t, trace.PageDoubleAlloc, v.Kind)
	require.Equal(t, uint64(0x3000), v.Addr)
	require.Equal(t, 10, v.PriorLine())
	require.Equal(t, 20, v.Line())

	// The page stays allocated, owned by the newer event.
	owner, ok := pt.Owner(0x3000)
	require.True(t, ok)
	require.Equal(t, 20, owner.Line)
	require.Equal(t, uint64(0x10), owner.Flags)
}

func TestPageTrackerTripleFreeChains(t *testing.T) {
	pt := trace.NewPageTracker(20)

	require.Empty(t, pt.ObserveAlloc(pageAlloc(1, 0, 0, 0x5000)))
	require.Empty(t, pt.ObserveFree(pageFree(2, 0, 0, 0x5000)))

	vs := pt.ObserveFree(pageFree(3, 0, 0, 0x5000))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageDoubleFree, vs[0].Kind)
	require.Equal(t, 2, vs[0].PriorLine())

	// The third free chains against the second, not the first.
	vs = pt.ObserveFree(pageFree(4, 0, 0, 0x5000))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageDoubleFree, vs[0].Kind)
	require.Equal(t, 3, vs[0].PriorLine())
}

func TestPageTrackerFreeWithoutAlloc(t *testing.T) {
	pt := trace.NewPageTracker(20)

	vs := pt.ObserveFree(pageFree(7, 0, 0, 0x9000))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageFreeWithoutAlloc, vs[0].Kind)
	require.Equal(t, uint64(0x9000), vs[0].Addr)
	require.Equal(t, 7, vs[0].Line())
}

func TestPageTrackerOrderExpansion(t *testing.T) {
	pt := trace.NewPageTracker(20)

	// An order-2 block owns four pages; a single-page alloc inside it
	// conflicts with the block, and only with the page it overlaps.
	require.Empty(t, pt.ObserveAlloc(pageAlloc(1, 2, 0, 0x10000)))
	require.Equal(t, 4, pt.Live())

	vs := pt.ObserveAlloc(pageAlloc(2, 0, 0, 0x11000))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageDoubleAlloc, vs[0].Kind)
	require.Equal(t, uint64(0x11000), vs[0].Addr)
	require.Equal(t, 1, vs[0].PriorLine())

	// Freeing the whole block double-frees nothing but surfaces the page
	// count: three pages are still owned by the block alloc, one by the
	// overlapping alloc, so the order-2 free transitions all four.
	require.Empty(t, pt.ObserveFree(pageFree(3, 2, 0, 0x10000)))
	require.Equal(t, 0, pt.Live())
}

func TestPageTrackerLeaks(t *testing.T) {
	pt := trace.NewPageTracker(20)

	pt.ObserveAlloc(pageAlloc(5, 1, 0, 0x20000)) // two pages, never freed
	pt.ObserveAlloc(pageAlloc(3, 0, 0, 0x40000))
	pt.ObserveAlloc(pageAlloc(8, 0, 0, 0x50000))
	pt.ObserveFree(pageFree(9, 0, 0, 0x50000))

	require.Equal(t, 3, pt.Live())

	// One entry per allocation event, not per page, in line order.
	leaks := pt.Leaks()
	require.Len(t, leaks, 2)
	require.Equal(t, 3, leaks[0].Line)
	require.Equal(t, 5, leaks[1].Line)
	require.Equal(t, uint64(0x20000), leaks[1].Addr)
}

func TestPageTrackerUnaligned(t *testing.T) {
	pt := trace.NewPageTracker(20)

	vs := pt.ObserveAlloc(pageAlloc(1, 0, 0, 0x3001))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageUnaligned, vs[0].Kind)

	// The event is still applied at the address given.
	vs = pt.ObserveAlloc(pageAlloc(2, 0, 0, 0x3001))
	require.Len(t, vs, 2)
	require.Equal(t, trace.PageUnaligned, vs[0].Kind)
	require.Equal(t, trace.PageDoubleAlloc, vs[1].Kind)
}

func TestPageTrackerOrderCeiling(t *testing.T) {
	pt := trace.NewPageTracker(10)

	vs := pt.ObserveAlloc(pageAlloc(1, 11, 0, 0x80000000))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageRangeOverflow, vs[0].Kind)

	// Only the base page was tracked.
	require.Equal(t, 1, pt.Live())
	vs = pt.ObserveFree(pageFree(2, 0, 0, 0x80001000))
	require.Len(t, vs, 1)
	require.Equal(t, trace.PageFreeWithoutAlloc, vs[0].Kind)
}

func TestPageTrackerStats(t *testing.T) {
	pt := trace.NewPageTracker(20)

	pt.ObserveAlloc(pageAlloc(1, 0, 0x80, 0x1000))
	pt.ObserveAlloc(pageAlloc(2, 2, 0x80, 0x4000))
	pt.ObserveAlloc(pageAlloc(3, 0, 0x10, 0x2000))
	pt.ObserveFree(pageFree(4, 0, 0x80, 0x1000))

	require.Equal(t, 3, pt.AllocEvents())
	require.Equal(t, 1, pt.FreeEvents())

	orders := pt.OrderStats()
	require.Len(t, orders, 2)
	require.Equal(t, trace.OrderStat{Order: 0, Allocs: 2, Frees: 1, Pages: 2}, orders[0])
	require.Equal(t, trace.OrderStat{Order: 2, Allocs: 1, Frees: 0, Pages: 4}, orders[1])

	flags := pt.FlagStats()
	require.Len(t, flags, 2)
	require.Equal(t, trace.FlagStat{Flags: 0x10, Allocs: 1}, flags[0])
	require.Equal(t, trace.FlagStat{Flags: 0x80, Allocs: 2}, flags[1])
}

func TestPageTrackerArenaLastWins(t *testing.T) {
	pt := trace.NewPageTracker(20)

	_, ok := pt.Arena()
	require.False(t, ok)

	pt.ObserveBuddyRange(trace.BuddyRange{Start: 0x1000, End: 0x5000, Line: 1})
	pt.ObserveBuddyRange(trace.BuddyRange{Start: 0x8000, End: 0x9000, Line: 2})

	arena, ok := pt.Arena()
	require.True(t, ok)
	require.Equal(t, uint64(0x8000), arena.Start)
}
