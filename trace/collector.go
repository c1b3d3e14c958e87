package trace

import "sort"

// Collector accumulates violations in encounter order. It is append-only;
// the read views never mutate it, so the report layer can query it freely
// after the pass.
type Collector struct {
	violations []Violation
	counts     [violationKinds]int
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends a violation, preserving arrival order.
func (c *Collector) Add(v Violation) {
	c.violations = append(c.violations, v)
	if v.Kind < violationKinds {
		c.counts[v.Kind]++
	}
}

// Len returns the total number of collected violations.
func (c *Collector) Len() int { return len(c.violations) }

// Empty reports whether nothing has been collected.
func (c *Collector) Empty() bool { return len(c.violations) == 0 }

// All returns every violation in encounter order. The slice is a copy.
func (c *Collector) All() []Violation {
	out := make([]Violation, len(c.violations))
	copy(out, c.violations)
	return out
}

// Count returns how many violations of kind k were collected.
func (c *Collector) Count(k ViolationKind) int {
	if k < violationKinds {
		return c.counts[k]
	}
	return 0
}

// ByKind returns the violations of kind k in encounter order.
func (c *Collector) ByKind(k ViolationKind) []Violation {
	out := make([]Violation, 0, c.Count(k))
	for _, v := range c.violations {
		if v.Kind == k {
			out = append(out, v)
		}
	}
	return out
}

// ByAddress groups violations by implicated address.
func (c *Collector) ByAddress() map[uint64][]Violation {
	out := make(map[uint64][]Violation)
	for _, v := range c.violations {
		out[v.Addr] = append(out[v.Addr], v)
	}
	return out
}

// AddrCount pairs an address with its violation count.
type AddrCount struct {
	Addr  uint64 `json:"addr"`
	Count int    `json:"count"`
}

// TopAddresses returns the n most frequently implicated addresses, most
// frequent first; ties break toward the lower address so the ordering is
// deterministic. Pass n <= 0 for all addresses.
func (c *Collector) TopAddresses(n int) []AddrCount {
	freq := make(map[uint64]int)
	for _, v := range c.violations {
		freq[v.Addr]++
	}
	counts := make([]AddrCount, 0, len(freq))
	for addr, cnt := range freq {
		counts = append(counts, AddrCount{Addr: addr, Count: cnt})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Addr < counts[j].Addr
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
