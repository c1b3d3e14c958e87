package main

import (
	"github.com/spf13/cobra"

	"github.com/allockit/allockit/internal/format"
	"github.com/allockit/allockit/trace/report"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <log>",
		Short: "Show allocation statistics",
		Long: `The stats command shows allocation statistics for a trace log: events
per buddy order, page flag usage, and slab activity per cache and per
object size. No verification result is implied; violations are reported
by check and report.

Example:
  alloctl stats console.log
  alloctl stats console.log --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0])
		},
	}
}

func runStats(logPath string) error {
	v, err := runEngine(logPath)
	if err != nil {
		return err
	}
	r := report.New(v, logPath)

	if jsonOut {
		return printJSON(map[string]interface{}{
			"file":        r.FilePath,
			"page_events": r.PageEvents,
			"slab_events": r.SlabEvents,
			"order_stats": r.OrderStats,
			"flag_stats":  r.FlagStats,
			"cache_stats": r.CacheStats,
			"size_stats":  r.SizeStats,
		})
	}

	printInfo("Events: %d page, %d slab\n", r.PageEvents, r.SlabEvents)
	if r.Arena != nil {
		printInfo("Buddy arena: 0x%x - 0x%x\n", r.Arena.Start, r.Arena.End)
	}

	if len(r.OrderStats) > 0 {
		printInfo("\nPage allocation by order:\n")
		for _, s := range r.OrderStats {
			printInfo("  order %2d: %d allocs, %d frees, %d total pages\n",
				s.Order, s.Allocs, s.Frees, s.Pages)
		}
	}
	if len(r.FlagStats) > 0 {
		printInfo("\nPage flag usage:\n")
		for _, s := range r.FlagStats {
			printInfo("  %s (0x%x): %d allocations\n", format.FlagString(s.Flags), s.Flags, s.Allocs)
		}
	}
	if len(r.CacheStats) > 0 {
		printInfo("\nSlab allocation by cache:\n")
		for _, s := range r.CacheStats {
			printInfo("  %s: %d allocs, %d frees, net %d\n", s.Cache, s.Allocs, s.Frees, s.Allocs-s.Frees)
		}
	}
	if len(r.SizeStats) > 0 {
		printInfo("\nSlab allocation by object size:\n")
		for _, s := range r.SizeStats {
			printInfo("  %d bytes: %d allocations\n", s.Size, s.Allocs)
		}
	}
	return nil
}
