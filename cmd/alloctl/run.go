package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/viper"

	"github.com/allockit/allockit/internal/mmfile"
	"github.com/allockit/allockit/trace"
	"github.com/allockit/allockit/trace/scan"
)

// engineConfig assembles the run parameters from the limits preset, the
// config file, and flags.
func engineConfig() (trace.Config, error) {
	var cfg trace.Config
	switch viper.GetString("limits") {
	case "default", "":
		cfg = trace.DefaultConfig()
	case "strict":
		cfg = trace.StrictConfig()
	case "relaxed":
		cfg = trace.RelaxedConfig()
	default:
		return trace.Config{}, fmt.Errorf("unknown limits preset: %s (must be default, strict, or relaxed)", viper.GetString("limits"))
	}

	bit := viper.GetUint("slab-flag-bit")
	if bit > 63 {
		return trace.Config{}, fmt.Errorf("slab-flag-bit out of range: %d (must be 0-63)", bit)
	}
	cfg.SlabFlag = 1 << bit

	if mo := viper.GetUint("max-order"); mo > 0 {
		if mo > 63 {
			return trace.Config{}, fmt.Errorf("max-order out of range: %d (must be 1-63)", mo)
		}
		cfg.MaxOrder = mo
	}
	cfg.MaxViolations = viper.GetInt("max-violations")
	return cfg, nil
}

// runEngine maps the log and replays it through a fresh verifier. An
// unreadable input is fatal before any event is processed.
func runEngine(logPath string) (*trace.Verifier, error) {
	cfg, err := engineConfig()
	if err != nil {
		return nil, err
	}

	printVerbose("Loading log: %s\n", logPath)
	data, cleanup, err := mmfile.Map(logPath)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer cleanup() //nolint:errcheck // read-only mapping

	v := trace.NewVerifier(cfg)
	s := scan.NewWithOptions(bytes.NewReader(data), scan.Options{Latin1: latin1})
	for s.Scan() {
		if !v.Apply(s.Event()) {
			printVerbose("Stopped after %d violations (max-violations)\n", v.Violations().Len())
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	printVerbose("Scanned %d lines, %d events (%d page, %d slab)\n",
		s.Line(), v.Events(), v.PageEvents(), v.SlabEvents())
	return v, nil
}
