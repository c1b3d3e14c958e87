package main

import (
	"github.com/spf13/cobra"

	"github.com/allockit/allockit/trace/report"
)

func init() {
	rootCmd.AddCommand(newLeaksCmd())
}

func newLeaksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaks <log>",
		Short: "List allocations still live at end of log",
		Long: `The leaks command lists every page and slab allocation that was never
freed by the end of the log. These are leak candidates, not violations:
a long-lived allocation is indistinguishable from a leak in a finite
capture.

Example:
  alloctl leaks console.log
  alloctl leaks console.log --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaks(args[0])
		},
	}
}

func runLeaks(logPath string) error {
	v, err := runEngine(logPath)
	if err != nil {
		return err
	}
	r := report.New(v, logPath)

	if jsonOut {
		return printJSON(map[string]interface{}{
			"file":           r.FilePath,
			"live_pages":     r.LivePages,
			"live_slab_objs": r.LiveSlabObjs,
			"page_leaks":     r.PageLeaks,
			"slab_leaks":     r.SlabLeaks,
		})
	}

	if len(r.PageLeaks) == 0 && len(r.SlabLeaks) == 0 {
		printInfo("No leak candidates: every allocation was freed.\n")
		return nil
	}

	if len(r.PageLeaks) > 0 {
		printInfo("Page leak candidates (%d allocations, %d pages live):\n",
			len(r.PageLeaks), r.LivePages)
		for _, e := range r.PageLeaks {
			printInfo("  line %d: 0x%x (order %d, %d pages, flags 0x%x)\n",
				e.Line, e.Addr, e.Order, e.PageCount(), e.Flags)
		}
	}
	if len(r.SlabLeaks) > 0 {
		printInfo("Slab leak candidates (%d objects live):\n", r.LiveSlabObjs)
		for _, e := range r.SlabLeaks {
			printInfo("  line %d: obj 0x%x (cache %s, size %d)\n",
				e.Line, e.Addr, e.Cache, e.Size)
		}
	}
	return nil
}
