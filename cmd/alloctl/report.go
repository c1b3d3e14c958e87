package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/allockit/allockit/trace/report"
)

var (
	reportFormat string
	reportOutput string
)

func init() {
	cmd := newReportCmd()
	cmd.Flags().StringVarP(&reportFormat, "format", "f", "text",
		"Output format: text, compact, json (text=full report, compact=one line per violation)")
	cmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Write report to file instead of stdout")
	rootCmd.AddCommand(cmd)
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <log>",
		Short: "Produce a full verification report",
		Long: `The report command replays an allocator trace log and renders the full
report: summary, every violation with both source lines, the most
problematic addresses, allocation statistics, and leak candidates.

Example:
  alloctl report console.log
  alloctl report console.log --format compact
  alloctl report console.log --format json -o report.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(args[0])
		},
	}
}

func runReport(logPath string) error {
	v, err := runEngine(logPath)
	if err != nil {
		return err
	}
	r := report.New(v, logPath)

	format := reportFormat
	if jsonOut {
		format = "json"
	}

	var out string
	switch format {
	case "text":
		out = r.FormatText()
	case "compact":
		out = r.FormatTextCompact()
	case "json":
		out, err = r.FormatJSON()
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		out += "\n"
	default:
		return fmt.Errorf("unknown format: %s (must be text, compact, or json)", format)
	}

	if reportOutput != "" {
		if err := os.WriteFile(reportOutput, []byte(out), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		printInfo("Report written to %s\n", reportOutput)
		return nil
	}
	fmt.Print(out)
	return nil
}
