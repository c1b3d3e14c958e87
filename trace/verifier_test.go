package trace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allockit/allockit/trace"
)

func TestVerifierCleanRun(t *testing.T) {
	v := trace.NewVerifier(trace.DefaultConfig())

	events := []trace.Event{
		trace.BuddyRange{Start: 0x1000, End: 0x100000, Line: 1},
		pageAlloc(2, 0, 0x80, 0x2000),
		slabAlloc(3, "kmalloc-64", 0x2040, 64),
		slabFree(4, "kmalloc-64", 0x2040, 64),
		pageFree(5, 0, 0x80, 0x2000),
	}
	for _, e := range events {
		require.True(t, v.Apply(e))
	}

	require.True(t, v.Violations().Empty())
	require.Equal(t, 2, v.PageEvents())
	require.Equal(t, 2, v.SlabEvents())
	require.Equal(t, 4, v.Events())
	require.Equal(t, 0, v.Pages().Live())
	require.Equal(t, 0, v.Slabs().Live())
}

func TestVerifierConfigDefaults(t *testing.T) {
	v := trace.NewVerifier(trace.Config{})
	cfg := v.Config()
	require.Equal(t, uint64(1<<7), cfg.SlabFlag)
	require.Equal(t, uint(20), cfg.MaxOrder)
	require.Equal(t, 0, cfg.MaxViolations)

	require.Equal(t, uint(10), trace.StrictConfig().MaxOrder)
	require.Equal(t, uint(51), trace.RelaxedConfig().MaxOrder)
}

func TestVerifierArenaCheckPrecedesTracking(t *testing.T) {
	v := trace.NewVerifier(trace.DefaultConfig())

	v.Apply(trace.BuddyRange{Start: 0x1000, End: 0x5000, Line: 1})
	v.Apply(pageAlloc(2, 0, 0, 0x8000)) // outside, also a fresh alloc
	v.Apply(pageAlloc(3, 0, 0, 0x8000)) // outside again, now a double alloc too

	all := v.Violations().All()
	require.Len(t, all, 3)
	require.Equal(t, trace.PageOutsideBuddyRange, all[0].Kind)
	require.Equal(t, trace.PageOutsideBuddyRange, all[1].Kind)
	require.Equal(t, trace.PageDoubleAlloc, all[2].Kind)
}

func TestVerifierSlabCheckUsesPageState(t *testing.T) {
	v := trace.NewVerifier(trace.DefaultConfig())

	// kernel flag layout: bit 7 marks slab-backing pages
	v.Apply(pageAlloc(1, 0, 0x80, 0x2000))
	require.True(t, v.Apply(slabAlloc(2, "kmalloc-64", 0x2040, 64)))
	require.True(t, v.Violations().Empty())

	// Same object address in a page that was never allocated.
	v.Apply(slabAlloc(3, "kmalloc-64", 0x9040, 64))
	all := v.Violations().All()
	require.Len(t, all, 1)
	require.Equal(t, trace.SlabPageNotAllocated, all[0].Kind)
}

func TestVerifierMaxViolationsStops(t *testing.T) {
	cfg := trace.DefaultConfig()
	cfg.MaxViolations = 2
	v := trace.NewVerifier(cfg)

	require.True(t, v.Apply(pageFree(1, 0, 0, 0x1000)))  // 1st violation
	require.False(t, v.Apply(pageFree(2, 0, 0, 0x2000))) // 2nd, budget hit
	require.True(t, v.Exhausted())

	// Further events are ignored entirely.
	require.False(t, v.Apply(pageFree(3, 0, 0, 0x3000)))
	require.Equal(t, 2, v.Violations().Len())
	require.Equal(t, 2, v.PageEvents())
}

func TestVerifierOverflowTracksBaseOnly(t *testing.T) {
	v := trace.NewVerifier(trace.DefaultConfig())

	v.Apply(trace.BuddyRange{Start: 0x1000, End: 0x100000, Line: 1})
	v.Apply(pageAlloc(2, 30, 0, 0x2000)) // above the default ceiling

	all := v.Violations().All()
	require.Len(t, all, 1)
	require.Equal(t, trace.PageRangeOverflow, all[0].Kind)
	require.Equal(t, 1, v.Pages().Live())
}

func TestVerifierDeterministic(t *testing.T) {
	events := []trace.Event{
		trace.BuddyRange{Start: 0x1000, End: 0x10000, Line: 1},
		pageAlloc(2, 0, 0x80, 0x2000),
		pageAlloc(3, 0, 0x80, 0x2000),
		slabAlloc(4, "kmalloc-64", 0x2040, 64),
		slabFree(5, "kmalloc-64", 0x2040, 64),
		slabFree(6, "kmalloc-64", 0x2040, 64),
		pageFree(7, 0, 0x80, 0x2000),
		pageFree(8, 0, 0x80, 0x2000),
		pageAlloc(9, 1, 0, 0xf000), // spans past the arena end
	}

	run := func() []string {
		v := trace.NewVerifier(trace.DefaultConfig())
		for _, e := range events {
			v.Apply(e)
		}
		var out []string
		for _, viol := range v.Violations().All() {
			out = append(out, viol.String())
		}
		return out
	}

	first := run()
	require.Len(t, first, 4) // double alloc, slab double free, page double free, out of range
	require.Equal(t, first, run())
}
