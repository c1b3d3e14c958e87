package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allockit/allockit/trace/report"
)

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <log>",
		Short: "Verify a trace log and summarize violations",
		Long: `The check command replays an allocator trace log and prints a violation
summary. The exit status is 0 when the log is clean and 1 when any
violation was found, so check can gate CI runs of kernel tests.

Example:
  alloctl check console.log
  alloctl check console.log --limits strict
  alloctl check console.log --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args[0])
		},
	}
}

func runCheck(logPath string) error {
	v, err := runEngine(logPath)
	if err != nil {
		return err
	}
	r := report.New(v, logPath)

	if jsonOut {
		if err := printJSON(r.Summary); err != nil {
			return err
		}
	} else {
		printInfo("Checked %s: %d page events, %d slab events\n\n",
			logPath, r.PageEvents, r.SlabEvents)
		printInfo("  Total violations: %d (%d page, %d slab)\n",
			r.Summary.Total, r.Summary.PageErrors, r.Summary.SlabErrors)
		for _, kc := range r.Summary.ByKind {
			if kc.Count > 0 {
				printInfo("  %-32s %d\n", kc.Kind+":", kc.Count)
			}
		}
		if !r.HasViolations() {
			printInfo("\nResult: CLEAN\n")
		} else {
			printInfo("\nResult: %d VIOLATION(S)\n", r.Summary.Total)
		}
	}

	if r.HasViolations() {
		// Distinct from the exit code 2 used for operational errors.
		return &violationsError{count: r.Summary.Total}
	}
	return nil
}

// violationsError signals a clean run that found violations.
type violationsError struct {
	count int
}

func (e *violationsError) Error() string {
	return fmt.Sprintf("%d violation(s) found", e.count)
}
