package trace

import "github.com/allockit/allockit/internal/format"

// defaultMaxOrder bounds how far a single event may be expanded. Real
// kernels stay at or below order 10, but logs are not trusted: anything
// above the ceiling is reported and tracked as its base page only.
const defaultMaxOrder = 20

// Config carries the run parameters of a verification pass.
type Config struct {
	// SlabFlag is the page flag bit that marks a page as slab-backing.
	// Flag layouts differ between kernels, so the bit is injected here
	// rather than assumed. Zero selects the default (1<<7).
	SlabFlag uint64

	// MaxOrder is the largest buddy order expanded page by page. Events
	// above it are recorded as range overflows. Zero selects the default.
	MaxOrder uint

	// MaxViolations stops the pass after this many findings; 0 means
	// unlimited. Purely an input parameter, not a concurrency concern.
	MaxViolations int
}

// DefaultConfig returns the standard run parameters.
func DefaultConfig() Config {
	return Config{SlabFlag: format.PageFlagSlab, MaxOrder: defaultMaxOrder}
}

// StrictConfig caps orders at the traced kernel's PAGE_BUDDY_MAX_ORDER, so
// anything a real buddy allocator could never emit is flagged.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxOrder = format.BuddyMaxOrder
	return cfg
}

// RelaxedConfig expands any order that fits the 64-bit address space.
func RelaxedConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxOrder = maxSafeOrder
	return cfg
}

// Verifier is one verification run: both trackers, the cross-layer checks,
// and the collector, fed events strictly in log order. It is a synchronous
// fold over the event sequence; construct one per run and discard it after
// the report is produced.
type Verifier struct {
	cfg       Config
	pages     *PageTracker
	slabs     *SlabTracker
	collector *Collector

	pageEvents int
	slabEvents int
}

// NewVerifier returns a fresh run with zeroed Config fields defaulted.
func NewVerifier(cfg Config) *Verifier {
	if cfg.SlabFlag == 0 {
		cfg.SlabFlag = format.PageFlagSlab
	}
	if cfg.MaxOrder == 0 {
		cfg.MaxOrder = defaultMaxOrder
	}
	return &Verifier{
		cfg:       cfg,
		pages:     NewPageTracker(cfg.MaxOrder),
		slabs:     NewSlabTracker(),
		collector: NewCollector(),
	}
}

// Apply dispatches one event to the appropriate tracker and records any
// resulting violations. No violation ever halts ingestion; the simulated
// state tracks the log's claims, not a corrected model. Apply reports
// whether the caller should keep feeding events: it turns false once the
// MaxViolations budget is exhausted.
func (v *Verifier) Apply(ev Event) bool {
	if v.Exhausted() {
		return false
	}
	switch e := ev.(type) {
	case PageEvent:
		v.pageEvents++
		if e.Kind == Alloc {
			if viol := CheckArena(v.pages, e); viol != nil {
				v.collect(*viol)
			}
			v.collectAll(v.pages.ObserveAlloc(e))
		} else {
			v.collectAll(v.pages.ObserveFree(e))
		}
	case SlabEvent:
		v.slabEvents++
		if e.Kind == Alloc {
			if viol := CheckSlabBacking(v.pages, v.cfg.SlabFlag, e); viol != nil {
				v.collect(*viol)
			}
			v.collectAll(v.slabs.ObserveAlloc(e))
		} else {
			v.collectAll(v.slabs.ObserveFree(e))
		}
	case BuddyRange:
		v.pages.ObserveBuddyRange(e)
	}
	return !v.Exhausted()
}

func (v *Verifier) collect(viol Violation) {
	if !v.Exhausted() {
		v.collector.Add(viol)
	}
}

func (v *Verifier) collectAll(viols []Violation) {
	for _, viol := range viols {
		v.collect(viol)
	}
}

// Exhausted reports whether the MaxViolations budget has been reached.
func (v *Verifier) Exhausted() bool {
	return v.cfg.MaxViolations > 0 && v.collector.Len() >= v.cfg.MaxViolations
}

// Violations returns the collector holding every finding in encounter order.
func (v *Verifier) Violations() *Collector { return v.collector }

// Pages returns the page tracker.
func (v *Verifier) Pages() *PageTracker { return v.pages }

// Slabs returns the slab tracker.
func (v *Verifier) Slabs() *SlabTracker { return v.slabs }

// Config returns the run parameters after defaulting.
func (v *Verifier) Config() Config { return v.cfg }

// PageEvents returns the number of page events applied.
func (v *Verifier) PageEvents() int { return v.pageEvents }

// SlabEvents returns the number of slab events applied.
func (v *Verifier) SlabEvents() int { return v.slabEvents }

// Events returns the total number of page and slab events applied.
func (v *Verifier) Events() int { return v.pageEvents + v.slabEvents }
