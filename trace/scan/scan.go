// Package scan tokenizes kernel console captures into allocator trace
// events. Each line either matches one of the recognized grammars and yields
// exactly one event, or is silently skipped; skipping is not an error, since
// allocator lines are interleaved with arbitrary console output.
//
// Recognized line shapes:
//
//	page_alloc: order 0, flags 0x80, page 0x80042000
//	page_free: order 0, flags 0x80, page 0x80042000
//	slab_alloc: cache kmalloc-64(0x80041a40), obj 0x80042040, size: 64
//	slab_free: cache kmalloc-64(0x80041a40), obj 0x80042040, size: 64
//	page_buddy_init(): buddy pages from 0x80040000 to 0x88000000
//
// The slab grammars are also accepted with a "()" after the function name;
// different kernel builds print either spelling.
package scan

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/allockit/allockit/trace"
)

const (
	// scannerInitialBufferSize seeds the line buffer. Console lines are
	// short, but starting at 64 KiB avoids regrowth on noisy captures.
	scannerInitialBufferSize = 64 * 1024

	// scannerMaxLineSize caps a single line. Beyond this the scan fails
	// rather than buffering without bound.
	scannerMaxLineSize = 1 << 20
)

var (
	pageAllocRe = regexp.MustCompile(`page_alloc: order (\d+), flags (0x[0-9a-fA-F]+), page (0x[0-9a-fA-F]+)`)
	pageFreeRe  = regexp.MustCompile(`page_free: order (\d+), flags (0x[0-9a-fA-F]+), page (0x[0-9a-fA-F]+)`)
	slabAllocRe = regexp.MustCompile(`slab_alloc(?:\(\))?: cache ([^(]+)\(([^)]+)\), obj (0x[0-9a-fA-F]+), size: (\d+)`)
	slabFreeRe  = regexp.MustCompile(`slab_free(?:\(\))?: cache ([^(]+)\(([^)]+)\), obj (0x[0-9a-fA-F]+), size: (\d+)`)
	buddyInitRe = regexp.MustCompile(`page_buddy_init\(\): buddy pages from (0x[0-9a-fA-F]+) to (0x[0-9a-fA-F]+)`)
)

// Options configures a Scanner.
type Options struct {
	// Latin1 wraps the input in a Windows-1252 to UTF-8 decoder. Serial
	// console captures are frequently in the local 8-bit encoding rather
	// than UTF-8.
	Latin1 bool

	// MaxLineSize overrides the per-line buffer cap; 0 keeps the default.
	MaxLineSize int
}

// Scanner walks a capture line by line, yielding one trace event per
// recognized line. Usage mirrors bufio.Scanner:
//
//	s := scan.New(r)
//	for s.Scan() {
//		apply(s.Event())
//	}
//	if err := s.Err(); err != nil {
//		...
//	}
type Scanner struct {
	s     *bufio.Scanner
	line  int
	lines int
	ev    trace.Event
}

// New returns a Scanner with default options.
func New(r io.Reader) *Scanner {
	return NewWithOptions(r, Options{})
}

// NewWithOptions returns a Scanner over r.
func NewWithOptions(r io.Reader, opts Options) *Scanner {
	if opts.Latin1 {
		r = transform.NewReader(r, charmap.Windows1252.NewDecoder())
	}
	s := bufio.NewScanner(r)
	maxLine := opts.MaxLineSize
	if maxLine <= 0 {
		maxLine = scannerMaxLineSize
	}
	s.Buffer(make([]byte, 0, scannerInitialBufferSize), maxLine)
	return &Scanner{s: s}
}

// Scan advances to the next recognized event, skipping unmatched lines.
// It returns false at end of input or on a read error; check Err.
func (s *Scanner) Scan() bool {
	for s.s.Scan() {
		s.line++
		if ev, ok := parseLine(strings.TrimSpace(s.s.Text()), s.line); ok {
			s.ev = ev
			s.lines++
			return true
		}
	}
	return false
}

// Event returns the event produced by the last successful Scan.
func (s *Scanner) Event() trace.Event { return s.ev }

// Err returns the first error encountered while reading, if any.
func (s *Scanner) Err() error { return s.s.Err() }

// Line returns the 1-based number of the last line read.
func (s *Scanner) Line() int { return s.line }

// Events returns how many recognized events have been produced so far.
func (s *Scanner) Events() int { return s.lines }

// parseLine matches line against the grammars in the same precedence the
// kernel analyzer scripts used. A grammar match with an unparsable numeric
// field is treated as unmatched.
func parseLine(line string, num int) (trace.Event, bool) {
	if m := buddyInitRe.FindStringSubmatch(line); m != nil {
		start, err1 := parseHex(m[1])
		end, err2 := parseHex(m[2])
		if err1 != nil || err2 != nil {
			return nil, false
		}
		return trace.BuddyRange{Start: start, End: end, Line: num}, true
	}
	if m := pageAllocRe.FindStringSubmatch(line); m != nil {
		return parsePage(trace.Alloc, m, num)
	}
	if m := pageFreeRe.FindStringSubmatch(line); m != nil {
		return parsePage(trace.Free, m, num)
	}
	if m := slabAllocRe.FindStringSubmatch(line); m != nil {
		return parseSlab(trace.Alloc, m, num)
	}
	if m := slabFreeRe.FindStringSubmatch(line); m != nil {
		return parseSlab(trace.Free, m, num)
	}
	return nil, false
}

func parsePage(kind trace.EventKind, m []string, num int) (trace.Event, bool) {
	order, err1 := strconv.ParseUint(m[1], 10, 32)
	flags, err2 := parseHex(m[2])
	addr, err3 := parseHex(m[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}
	return trace.PageEvent{
		Kind:  kind,
		Order: uint(order),
		Flags: flags,
		Addr:  addr,
		Line:  num,
	}, true
}

func parseSlab(kind trace.EventKind, m []string, num int) (trace.Event, bool) {
	handle, err1 := parseHex(m[2])
	addr, err2 := parseHex(m[3])
	size, err3 := strconv.ParseUint(m[4], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}
	return trace.SlabEvent{
		Kind:        kind,
		Cache:       strings.TrimSpace(m[1]),
		CacheHandle: handle,
		Addr:        addr,
		Size:        size,
		Line:        num,
	}, true
}

// parseHex parses a hexadecimal field with or without a 0x prefix.
func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}
