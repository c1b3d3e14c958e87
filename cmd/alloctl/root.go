package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
	latin1  bool
	limits  string
)

var rootCmd = &cobra.Command{
	Use:   "alloctl",
	Short: "Verify kernel allocator trace logs",
	Long: `alloctl replays page and slab allocator events from a captured kernel
console log, reconstructs the allocators' expected state, and reports every
observable invariant violation: double allocations, double frees, frees
without allocation, allocations outside the buddy arena, and slab objects
living in pages that are not allocated or not slab-backed.

Violations never stop the pass; the whole log is always examined.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.alloctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&latin1, "latin1", false, "Decode the log as Windows-1252/Latin-1")
	rootCmd.PersistentFlags().StringVar(&limits, "limits", "default", "Order-limit preset (default, strict, relaxed)")
	rootCmd.PersistentFlags().Uint("slab-flag-bit", 7, "Bit position of the slab-backing page flag")
	rootCmd.PersistentFlags().Uint("max-order", 0, "Override the buddy order ceiling (0 = preset value)")
	rootCmd.PersistentFlags().Int("max-violations", 0, "Stop after this many violations (0 = unlimited)")

	_ = viper.BindPFlag("slab-flag-bit", rootCmd.PersistentFlags().Lookup("slab-flag-bit"))
	_ = viper.BindPFlag("max-order", rootCmd.PersistentFlags().Lookup("max-order"))
	_ = viper.BindPFlag("max-violations", rootCmd.PersistentFlags().Lookup("max-violations"))
	_ = viper.BindPFlag("limits", rootCmd.PersistentFlags().Lookup("limits"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".alloctl")
	}

	viper.SetEnvPrefix("ALLOCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		// Exit 1 means the log was processed and violations were found;
		// exit 2 means the run itself failed.
		var vErr *violationsError
		if errors.As(err, &vErr) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
