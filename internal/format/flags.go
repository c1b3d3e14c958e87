package format

import (
	"fmt"
	"strings"
)

// FlagString renders a flags bitmask as a pipe-separated list of kernel flag
// names, e.g. "SLAB|UPTODATE". Unknown bits are kept as a hex remainder so
// nothing is silently dropped. A zero mask renders as "NONE".
func FlagString(flags uint64) string {
	if flags == 0 {
		return "NONE"
	}
	var parts []string
	rest := flags
	for _, fn := range flagNames {
		if rest&fn.bit != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("UNKNOWN(0x%x)", rest))
	}
	return strings.Join(parts, "|")
}
