// Package report renders finished verification runs as human-readable text,
// compact grep-friendly listings, or JSON. Formatting is a pure function of
// the run's collector and trackers: the same log always renders to the same
// bytes.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/allockit/allockit/internal/format"
	"github.com/allockit/allockit/trace"
)

// topAddressCount bounds the "most problematic addresses" section.
const topAddressCount = 10

// KindCount pairs a violation kind with its count, in taxonomy order.
type KindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Summary is the quick-statistics block of a report.
type Summary struct {
	Total      int         `json:"total"`
	PageErrors int         `json:"page_errors"`
	SlabErrors int         `json:"slab_errors"`
	ByKind     []KindCount `json:"by_kind"`
}

// Report is everything the reporting layer derives from a finished run.
type Report struct {
	FilePath   string `json:"file_path,omitempty"`
	PageEvents int    `json:"page_events"`
	SlabEvents int    `json:"slab_events"`

	Summary    Summary           `json:"summary"`
	Violations []trace.Violation `json:"violations"`

	TopAddresses []trace.AddrCount `json:"top_addresses,omitempty"`

	OrderStats []trace.OrderStat `json:"order_stats,omitempty"`
	FlagStats  []trace.FlagStat  `json:"flag_stats,omitempty"`
	CacheStats []trace.CacheStat `json:"cache_stats,omitempty"`
	SizeStats  []trace.SizeStat  `json:"size_stats,omitempty"`

	LivePages    int               `json:"live_pages"`
	LiveSlabObjs int               `json:"live_slab_objs"`
	PageLeaks    []trace.PageEvent `json:"page_leaks,omitempty"`
	SlabLeaks    []trace.SlabEvent `json:"slab_leaks,omitempty"`

	Arena *trace.BuddyRange `json:"arena,omitempty"`
}

// New builds a report from a finished run. filePath is recorded verbatim
// for display; pass "" when the input was not a file.
func New(v *trace.Verifier, filePath string) *Report {
	c := v.Violations()
	r := &Report{
		FilePath:   filePath,
		PageEvents: v.PageEvents(),
		SlabEvents: v.SlabEvents(),
		Violations: c.All(),

		TopAddresses: c.TopAddresses(topAddressCount),

		OrderStats: v.Pages().OrderStats(),
		FlagStats:  v.Pages().FlagStats(),
		CacheStats: v.Slabs().CacheStats(),
		SizeStats:  v.Slabs().SizeStats(),

		LivePages:    v.Pages().Live(),
		LiveSlabObjs: v.Slabs().Live(),
		PageLeaks:    v.Pages().Leaks(),
		SlabLeaks:    v.Slabs().Leaks(),
	}
	if arena, ok := v.Pages().Arena(); ok {
		r.Arena = &arena
	}
	r.Summary.Total = c.Len()
	for _, k := range trace.Kinds() {
		n := c.Count(k)
		r.Summary.ByKind = append(r.Summary.ByKind, KindCount{Kind: k.String(), Count: n})
		if k.Slab() {
			r.Summary.SlabErrors += n
		} else {
			r.Summary.PageErrors += n
		}
	}
	return r
}

// HasViolations reports whether the run found anything.
func (r *Report) HasViolations() bool { return r.Summary.Total > 0 }

// FormatJSON returns the report as formatted JSON (2-space indentation).
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FormatTextCompact returns one line per violation in source-line order
// (encounter order is source-line order; the pass is sequential).
func (r *Report) FormatTextCompact() string {
	var b strings.Builder
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "line %d: %s\n", v.Line(), v)
	}
	if len(r.Violations) == 0 {
		b.WriteString("No violations found.\n")
	}
	return b.String()
}

// FormatText returns the full human-readable report.
func (r *Report) FormatText() string {
	var b strings.Builder
	rule := strings.Repeat("=", 79)
	thin := strings.Repeat("-", 79)

	b.WriteString(rule + "\n")
	b.WriteString("Allocator Trace Verification Report\n")
	b.WriteString(rule + "\n\n")

	if r.FilePath != "" {
		fmt.Fprintf(&b, "File:        %s\n", r.FilePath)
	}
	fmt.Fprintf(&b, "Page events: %d\n", r.PageEvents)
	fmt.Fprintf(&b, "Slab events: %d\n", r.SlabEvents)
	if r.Arena != nil {
		fmt.Fprintf(&b, "Buddy arena: 0x%x - 0x%x\n", r.Arena.Start, r.Arena.End)
	}
	b.WriteString("\n")

	b.WriteString("SUMMARY\n")
	b.WriteString(thin + "\n")
	fmt.Fprintf(&b, "  Total violations: %d (%d page, %d slab)\n",
		r.Summary.Total, r.Summary.PageErrors, r.Summary.SlabErrors)
	for _, kc := range r.Summary.ByKind {
		if kc.Count > 0 {
			fmt.Fprintf(&b, "  %-32s %d\n", kc.Kind+":", kc.Count)
		}
	}
	if r.Summary.Total == 0 {
		b.WriteString("  No violations found.\n")
	}
	b.WriteString("\n")

	if len(r.Violations) > 0 {
		b.WriteString("VIOLATIONS\n")
		b.WriteString(thin + "\n")
		for i, v := range r.Violations {
			fmt.Fprintf(&b, "%4d. %s\n", i+1, v)
		}
		b.WriteString("\n")
	}

	if len(r.TopAddresses) > 0 {
		b.WriteString("MOST PROBLEMATIC ADDRESSES\n")
		b.WriteString(thin + "\n")
		for _, ac := range r.TopAddresses {
			fmt.Fprintf(&b, "  0x%-16x %d violation(s)\n", ac.Addr, ac.Count)
		}
		b.WriteString("\n")
	}

	r.writeStats(&b, thin)
	r.writeLeaks(&b, thin)

	return b.String()
}

func (r *Report) writeStats(b *strings.Builder, thin string) {
	if len(r.OrderStats) > 0 {
		b.WriteString("PAGE ALLOCATION BY ORDER\n")
		b.WriteString(thin + "\n")
		for _, s := range r.OrderStats {
			fmt.Fprintf(b, "  order %2d (%4d pages each): %d allocs, %d frees, %d total pages\n",
				s.Order, uint64(1)<<s.Order, s.Allocs, s.Frees, s.Pages)
		}
		b.WriteString("\n")
	}

	if len(r.FlagStats) > 0 {
		b.WriteString("PAGE FLAG USAGE\n")
		b.WriteString(thin + "\n")
		for _, s := range r.FlagStats {
			fmt.Fprintf(b, "  %s (0x%x): %d allocations\n", format.FlagString(s.Flags), s.Flags, s.Allocs)
		}
		b.WriteString("\n")
	}

	if len(r.CacheStats) > 0 {
		b.WriteString("SLAB ALLOCATION BY CACHE\n")
		b.WriteString(thin + "\n")
		for _, s := range r.CacheStats {
			fmt.Fprintf(b, "  %s: %d allocs, %d frees, net %d\n",
				s.Cache, s.Allocs, s.Frees, s.Allocs-s.Frees)
		}
		b.WriteString("\n")
	}

	if len(r.SizeStats) > 0 {
		b.WriteString("SLAB ALLOCATION BY OBJECT SIZE\n")
		b.WriteString(thin + "\n")
		for _, s := range r.SizeStats {
			fmt.Fprintf(b, "  %d bytes: %d allocations\n", s.Size, s.Allocs)
		}
		b.WriteString("\n")
	}
}

func (r *Report) writeLeaks(b *strings.Builder, thin string) {
	if len(r.PageLeaks) == 0 && len(r.SlabLeaks) == 0 {
		b.WriteString("No leak candidates: every allocation was freed.\n")
		return
	}

	if len(r.PageLeaks) > 0 {
		fmt.Fprintf(b, "PAGE LEAK CANDIDATES (%d allocations, %d pages live)\n",
			len(r.PageLeaks), r.LivePages)
		b.WriteString(thin + "\n")
		for _, e := range r.PageLeaks {
			fmt.Fprintf(b, "  line %d: 0x%x (order %d, %d pages, flags 0x%x)\n",
				e.Line, e.Addr, e.Order, e.PageCount(), e.Flags)
		}
		b.WriteString("\n")
	}

	if len(r.SlabLeaks) > 0 {
		fmt.Fprintf(b, "SLAB LEAK CANDIDATES (%d objects live)\n", r.LiveSlabObjs)
		b.WriteString(thin + "\n")
		for _, e := range r.SlabLeaks {
			fmt.Fprintf(b, "  line %d: obj 0x%x (cache %s, size %d)\n",
				e.Line, e.Addr, e.Cache, e.Size)
		}
		b.WriteString("\n")
	}
}
