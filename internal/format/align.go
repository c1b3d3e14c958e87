package format

// Alignment utilities for page-granular address arithmetic.

// PageBase returns the base address of the page containing addr.
func PageBase(addr uint64) uint64 {
	return addr &^ uint64(PageMask)
}

// PageAligned reports whether addr sits on a page boundary.
func PageAligned(addr uint64) bool {
	return addr&uint64(PageMask) == 0
}

// AlignPage returns n aligned up to the next page boundary.
func AlignPage(n uint64) uint64 {
	return (n + uint64(PageMask)) &^ uint64(PageMask)
}
