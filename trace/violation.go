package trace

import (
	"fmt"

	"github.com/allockit/allockit/internal/format"
)

// ViolationKind classifies a finding. The set is closed: the report layer
// switches over it exhaustively, so adding a kind is a compile-time-visible
// change.
type ViolationKind uint8

const (
	// PageDoubleAlloc: a page address was allocated while still considered
	// allocated from a prior, unfreed allocation.
	PageDoubleAlloc ViolationKind = iota
	// PageDoubleFree: a page address was freed while already freed.
	PageDoubleFree
	// PageFreeWithoutAlloc: a page address was freed without ever having
	// been observed as allocated.
	PageFreeWithoutAlloc
	// PageOutsideBuddyRange: an allocation's expanded byte range falls
	// outside the declared buddy arena.
	PageOutsideBuddyRange
	// PageUnaligned: a page event's base address is not page-aligned.
	// Input-shape anomaly; the event is still applied as given.
	PageUnaligned
	// PageRangeOverflow: a page event's order expands past the 64-bit
	// address space (or past the configured order ceiling). Input-shape
	// anomaly; only the base page is tracked for such events.
	PageRangeOverflow
	// SlabDoubleAlloc: a slab object address was allocated while still
	// allocated.
	SlabDoubleAlloc
	// SlabDoubleFree: a slab object address was freed while already freed.
	SlabDoubleFree
	// SlabFreeWithoutAlloc: a slab object address was freed without a live
	// allocation.
	SlabFreeWithoutAlloc
	// SlabPageNotAllocated: no currently allocated page contains the slab
	// object's address.
	SlabPageNotAllocated
	// SlabNotInSlabPage: the page containing the slab object lacks the
	// slab-backing flag.
	SlabNotInSlabPage

	violationKinds // count sentinel, keep last
)

var kindNames = [violationKinds]string{
	PageDoubleAlloc:       "page double allocation",
	PageDoubleFree:        "page double free",
	PageFreeWithoutAlloc:  "page free without allocation",
	PageOutsideBuddyRange: "page outside buddy range",
	PageUnaligned:         "unaligned page address",
	PageRangeOverflow:     "page range overflow",
	SlabDoubleAlloc:       "slab double allocation",
	SlabDoubleFree:        "slab double free",
	SlabFreeWithoutAlloc:  "slab free without allocation",
	SlabPageNotAllocated:  "slab object in unallocated page",
	SlabNotInSlabPage:     "slab object in non-slab page",
}

func (k ViolationKind) String() string {
	if k < violationKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("ViolationKind(%d)", uint8(k))
}

// Slab reports whether the kind concerns the slab layer.
func (k ViolationKind) Slab() bool { return k >= SlabDoubleAlloc }

// Kinds returns every violation kind in declaration order.
func Kinds() []ViolationKind {
	ks := make([]ViolationKind, violationKinds)
	for i := range ks {
		ks[i] = ViolationKind(i)
	}
	return ks
}

// Violation is a single finding. Kind selects which of the optional fields
// are populated; Addr always carries the implicated page or object address.
// Violations are immutable once collected.
type Violation struct {
	Kind ViolationKind `json:"kind"`
	Addr uint64        `json:"addr"`

	// Page event fields. Page is the triggering event for page kinds;
	// PriorPage is the prior owner for double alloc / double free.
	Page      *PageEvent `json:"page_event,omitempty"`
	PriorPage *PageEvent `json:"prior_page_event,omitempty"`

	// Slab event fields, populated for slab kinds.
	Slab      *SlabEvent `json:"slab_event,omitempty"`
	PriorSlab *SlabEvent `json:"prior_slab_event,omitempty"`

	// PageAddr is the computed containing page for slab cross-checks;
	// PageFlags carries the found page's flags for SlabNotInSlabPage.
	PageAddr  uint64 `json:"page_addr,omitempty"`
	PageFlags uint64 `json:"page_flags,omitempty"`

	// Arena carries the declared buddy bounds for PageOutsideBuddyRange.
	Arena *BuddyRange `json:"arena,omitempty"`
}

// Line returns the source line of the triggering event.
func (v Violation) Line() int {
	if v.Page != nil {
		return v.Page.Line
	}
	if v.Slab != nil {
		return v.Slab.Line
	}
	return 0
}

// PriorLine returns the source line of the prior conflicting event, or 0
// for single-event kinds.
func (v Violation) PriorLine() int {
	if v.PriorPage != nil {
		return v.PriorPage.Line
	}
	if v.PriorSlab != nil {
		return v.PriorSlab.Line
	}
	return 0
}

// String renders a one-line description carrying both source lines and the
// discriminating fields for the kind.
func (v Violation) String() string {
	switch v.Kind {
	case PageDoubleAlloc:
		return fmt.Sprintf("%s at 0x%x: first line %d (order %d, flags 0x%x), second line %d (order %d, flags 0x%x)",
			v.Kind, v.Addr,
			v.PriorPage.Line, v.PriorPage.Order, v.PriorPage.Flags,
			v.Page.Line, v.Page.Order, v.Page.Flags)
	case PageDoubleFree:
		return fmt.Sprintf("%s at 0x%x: previous free line %d, current free line %d (order %d, flags 0x%x)",
			v.Kind, v.Addr, v.PriorPage.Line, v.Page.Line, v.Page.Order, v.Page.Flags)
	case PageFreeWithoutAlloc:
		return fmt.Sprintf("%s at 0x%x: line %d (order %d, flags 0x%x)",
			v.Kind, v.Addr, v.Page.Line, v.Page.Order, v.Page.Flags)
	case PageOutsideBuddyRange:
		return fmt.Sprintf("%s at 0x%x: line %d range 0x%x-0x%x, buddy range 0x%x-0x%x",
			v.Kind, v.Addr, v.Page.Line, v.Page.Addr, v.Page.End(), v.Arena.Start, v.Arena.End)
	case PageUnaligned:
		return fmt.Sprintf("%s at 0x%x: line %d", v.Kind, v.Addr, v.Page.Line)
	case PageRangeOverflow:
		return fmt.Sprintf("%s at 0x%x: line %d (order %d)", v.Kind, v.Addr, v.Page.Line, v.Page.Order)
	case SlabDoubleAlloc:
		return fmt.Sprintf("%s at 0x%x: first line %d (cache %s, size %d), second line %d (cache %s, size %d)",
			v.Kind, v.Addr,
			v.PriorSlab.Line, v.PriorSlab.Cache, v.PriorSlab.Size,
			v.Slab.Line, v.Slab.Cache, v.Slab.Size)
	case SlabDoubleFree:
		return fmt.Sprintf("%s at 0x%x: previous free line %d (cache %s, size %d), current free line %d (cache %s, size %d)",
			v.Kind, v.Addr,
			v.PriorSlab.Line, v.PriorSlab.Cache, v.PriorSlab.Size,
			v.Slab.Line, v.Slab.Cache, v.Slab.Size)
	case SlabFreeWithoutAlloc:
		return fmt.Sprintf("%s at 0x%x: line %d (cache %s, size %d)",
			v.Kind, v.Addr, v.Slab.Line, v.Slab.Cache, v.Slab.Size)
	case SlabPageNotAllocated:
		return fmt.Sprintf("%s: obj 0x%x in unallocated page 0x%x, line %d (cache %s, size %d)",
			v.Kind, v.Addr, v.PageAddr, v.Slab.Line, v.Slab.Cache, v.Slab.Size)
	case SlabNotInSlabPage:
		return fmt.Sprintf("%s: obj 0x%x in page 0x%x with flags 0x%x (%s), line %d (cache %s)",
			v.Kind, v.Addr, v.PageAddr, v.PageFlags, format.FlagString(v.PageFlags), v.Slab.Line, v.Slab.Cache)
	default:
		return fmt.Sprintf("%s at 0x%x", v.Kind, v.Addr)
	}
}
