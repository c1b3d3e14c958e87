// Package trace reconstructs a kernel's page and slab allocator state from a
// captured console log and flags every observable invariant violation.
//
// # Overview
//
// The engine is a single forward pass over an ordered event sequence. Each
// event mutates one of two simulated state machines and may emit violations:
//
//   - PageTracker simulates the buddy allocator at per-page (4 KiB)
//     granularity, expanding order-k events into 2^k individual page records.
//   - SlabTracker simulates per-object ownership inside named caches.
//   - Cross-layer checks tie the two together: slab objects must live inside
//     currently allocated pages carrying the slab-backing flag, and page
//     allocations must stay inside the declared buddy arena.
//
// Violations are collected in encounter order by a Collector and never stop
// the pass: the simulated state always tracks the log's claims, not a
// corrected model, so later findings can depend on the inconsistent state
// earlier ones left behind.
//
// # Quick Start
//
//	v := trace.NewVerifier(trace.DefaultConfig())
//	s := scan.New(f)
//	for s.Scan() {
//		if !v.Apply(s.Event()) {
//			break // violation budget exhausted
//		}
//	}
//	if err := s.Err(); err != nil {
//		return err
//	}
//	for _, viol := range v.Violations().All() {
//		fmt.Println(viol)
//	}
//
// # Determinism
//
// The engine holds no global state and consults no clock: running it twice
// over the same event sequence yields byte-identical violation lists. All
// state lives in the Verifier instance and is discarded with it.
//
// Formatting of reports and summaries lives in the report subpackage; line
// tokenizing lives in the scan subpackage.
package trace
