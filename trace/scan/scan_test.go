package scan_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allockit/allockit/trace"
	"github.com/allockit/allockit/trace/scan"
)

func collect(t *testing.T, input string) []trace.Event {
	t.Helper()
	s := scan.New(strings.NewReader(input))
	var events []trace.Event
	for s.Scan() {
		events = append(events, s.Event())
	}
	require.NoError(t, s.Err())
	return events
}

func TestScanPageAlloc(t *testing.T) {
	events := collect(t, "page_alloc: order 2, flags 0x80, page 0x80042000\n")
	require.Len(t, events, 1)
	require.Equal(t, trace.PageEvent{
		Kind:  trace.Alloc,
		Order: 2,
		Flags: 0x80,
		Addr:  0x80042000,
		Line:  1,
	}, events[0])
}

func TestScanPageFree(t *testing.T) {
	events := collect(t, "page_free: order 0, flags 0x10, page 0x80043000\n")
	require.Len(t, events, 1)
	e, ok := events[0].(trace.PageEvent)
	require.True(t, ok)
	require.Equal(t, trace.Free, e.Kind)
	require.Equal(t, uint64(0x80043000), e.Addr)
}

func TestScanSlabEvents(t *testing.T) {
	input := strings.Join([]string{
		"slab_alloc: cache kmalloc-64(0x80041a40), obj 0x80042040, size: 64",
		"slab_free: cache kmalloc-64(0x80041a40), obj 0x80042040, size: 64",
	}, "\n")
	events := collect(t, input)
	require.Len(t, events, 2)

	a, ok := events[0].(trace.SlabEvent)
	require.True(t, ok)
	require.Equal(t, trace.Alloc, a.Kind)
	require.Equal(t, "kmalloc-64", a.Cache)
	require.Equal(t, uint64(0x80041a40), a.CacheHandle)
	require.Equal(t, uint64(0x80042040), a.Addr)
	require.Equal(t, uint64(64), a.Size)

	f, ok := events[1].(trace.SlabEvent)
	require.True(t, ok)
	require.Equal(t, trace.Free, f.Kind)
}

func TestScanSlabParenSpelling(t *testing.T) {
	// Some kernel builds print the function name with its call parens.
	input := strings.Join([]string{
		"slab_alloc(): cache inode_cache(0x80041b00), obj 0x80045100, size: 128",
		"slab_free(): cache inode_cache(0x80041b00), obj 0x80045100, size: 128",
	}, "\n")
	events := collect(t, input)
	require.Len(t, events, 2)
	e := events[0].(trace.SlabEvent)
	require.Equal(t, "inode_cache", e.Cache)
	require.Equal(t, uint64(128), e.Size)
}

func TestScanBuddyInit(t *testing.T) {
	events := collect(t, "page_buddy_init(): buddy pages from 0x80040000 to 0x88000000\n")
	require.Len(t, events, 1)
	require.Equal(t, trace.BuddyRange{
		Start: 0x80040000,
		End:   0x88000000,
		Line:  1,
	}, events[0])
}

func TestScanSkipsNoise(t *testing.T) {
	input := strings.Join([]string{
		"kernel is booting",
		"",
		"page_alloc: order 0, flags 0x80, page 0x80042000",
		"init: starting sh",
		"$ page_free: order 0, flags 0x80, page 0x80042000",
		"panic: unrelated message with 0x numbers 0xdeadbeef",
	}, "\n")

	s := scan.New(strings.NewReader(input))
	var lines []int
	for s.Scan() {
		lines = append(lines, s.Event().SourceLine())
	}
	require.NoError(t, s.Err())

	// Line numbers refer to the raw capture, noise included, and a match
	// anywhere in the line counts: console prompts prefix real events.
	require.Equal(t, []int{3, 5}, lines)
	require.Equal(t, 2, s.Events())
	require.Equal(t, 6, s.Line())
}

func TestScanLeadingWhitespaceAndCR(t *testing.T) {
	events := collect(t, "  page_alloc: order 0, flags 0x0, page 0x1000\r\n")
	require.Len(t, events, 1)
	require.Equal(t, uint64(0x1000), events[0].(trace.PageEvent).Addr)
}

func TestScanMalformedNumbersSkipped(t *testing.T) {
	// A line that matches the shape but overflows uint64 parsing is noise.
	events := collect(t, "page_alloc: order 99999999999999999999, flags 0x80, page 0x1000\n")
	require.Empty(t, events)
}

func TestScanLatin1Option(t *testing.T) {
	// 0xB0 is the degree sign in Windows-1252 and an invalid UTF-8 start
	// byte; the decoder keeps the surrounding events intact.
	input := "temp 45\xb0C\npage_alloc: order 0, flags 0x80, page 0x2000\n"
	s := scan.NewWithOptions(strings.NewReader(input), scan.Options{Latin1: true})
	var events []trace.Event
	for s.Scan() {
		events = append(events, s.Event())
	}
	require.NoError(t, s.Err())
	require.Len(t, events, 1)
	require.Equal(t, 2, events[0].SourceLine())
}

func TestScanVerifierPipeline(t *testing.T) {
	input := strings.Join([]string{
		"page_buddy_init(): buddy pages from 0x80040000 to 0x88000000",
		"page_alloc: order 0, flags 0x80, page 0x80042000",
		"slab_alloc: cache kmalloc-64(0x80041a40), obj 0x80042040, size: 64",
		"slab_free: cache kmalloc-64(0x80041a40), obj 0x80042040, size: 64",
		"slab_free: cache kmalloc-64(0x80041a40), obj 0x80042040, size: 64",
		"page_free: order 0, flags 0x80, page 0x80042000",
	}, "\n")

	v := trace.NewVerifier(trace.DefaultConfig())
	s := scan.New(strings.NewReader(input))
	for s.Scan() {
		if !v.Apply(s.Event()) {
			break
		}
	}
	require.NoError(t, s.Err())

	all := v.Violations().All()
	require.Len(t, all, 1)
	require.Equal(t, trace.SlabDoubleFree, all[0].Kind)
	require.Equal(t, 4, all[0].PriorLine())
	require.Equal(t, 5, all[0].Line())
}
