// Package format houses the numeric layout shared by the allocator trace
// packages: page geometry, buddy order limits, and the page flag bits the
// instrumented kernel stamps on every page_alloc line. Keeping these in one
// place lets the trackers, the validator, and the report formatters agree on
// byte-exact address arithmetic without importing each other.
package format

const (
	// PageSize is the size of a single physical page in bytes. The traced
	// kernel uses 4 KiB pages; every page address in a log line is expected
	// to be aligned to this.
	PageSize = 4096

	// PageShift is log2(PageSize).
	PageShift = 12

	// PageMask masks the in-page offset bits of an address.
	PageMask = PageSize - 1

	// BuddyMaxOrder is the largest buddy order the traced kernel can emit
	// (PAGE_BUDDY_MAX_ORDER). Logs are not trusted to honor it; the
	// verifier treats it as a default ceiling, not a hard fact.
	BuddyMaxOrder = 10
)

// Page flag bits, mirroring the traced kernel's page_type.h. The layout is a
// subset of the Linux page-flags namespace; bits the kernel has commented out
// are omitted here as well.
const (
	PageFlagLocked   uint64 = 1 << 0
	PageFlagUptodate uint64 = 1 << 3
	PageFlagDirty    uint64 = 1 << 4
	PageFlagSlab     uint64 = 1 << 7
	PageFlagBuddy    uint64 = 1 << 10
	PageFlagAnon     uint64 = 1 << 12
	PageFlagPgtable  uint64 = 1 << 26
)

// flagNames maps each known flag bit to its kernel name, in bit order.
var flagNames = []struct {
	bit  uint64
	name string
}{
	{PageFlagLocked, "LOCKED"},
	{PageFlagUptodate, "UPTODATE"},
	{PageFlagDirty, "DIRTY"},
	{PageFlagSlab, "SLAB"},
	{PageFlagBuddy, "BUDDY"},
	{PageFlagAnon, "ANON"},
	{PageFlagPgtable, "PGTABLE"},
}
