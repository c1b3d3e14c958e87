package trace

import "github.com/allockit/allockit/internal/format"

// Cross-layer checks. Both are side-effect-free: they read page tracker
// state and return at most one violation, leaving all records untouched.

// CheckArena validates that a page allocation's expanded byte range lies
// entirely within the declared buddy arena. Returns nil when no arena has
// been observed (nothing to check against) or when the event's range
// overflows (reported separately; its end address is meaningless).
func CheckArena(pages *PageTracker, e PageEvent) *Violation {
	arena, ok := pages.Arena()
	if !ok || e.Overflows() {
		return nil
	}
	if arena.Contains(e.Addr, e.End()) {
		return nil
	}
	ev := e
	return &Violation{
		Kind:  PageOutsideBuddyRange,
		Addr:  e.Addr,
		Page:  &ev,
		Arena: &arena,
	}
}

// CheckSlabBacking validates that a slab object lives inside a currently
// allocated page whose flags carry the slab-backing bit. The bit is injected
// by the caller rather than hard-coded: its position differs between kernel
// flag layouts.
func CheckSlabBacking(pages *PageTracker, slabFlag uint64, e SlabEvent) *Violation {
	ev := e
	pageAddr := format.PageBase(e.Addr)
	owner, ok := pages.Owner(e.Addr)
	if !ok {
		return &Violation{
			Kind:     SlabPageNotAllocated,
			Addr:     e.Addr,
			Slab:     &ev,
			PageAddr: pageAddr,
		}
	}
	if owner.Flags&slabFlag == 0 {
		return &Violation{
			Kind:      SlabNotInSlabPage,
			Addr:      e.Addr,
			Slab:      &ev,
			PageAddr:  pageAddr,
			PageFlags: owner.Flags,
		}
	}
	return nil
}
