// Command lmx simulates Lamport's distributed mutual-exclusion algorithm
// and inspects persisted runs.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("lmx", version)
		return
	}

	a := newApp()

	switch os.Args[1] {
	case "run":
		os.Exit(a.cmdRun(os.Args[2:]))
	case "runs":
		os.Exit(a.cmdRuns(os.Args[2:]))
	case "log":
		os.Exit(a.cmdLog(os.Args[2:]))
	case "ops":
		os.Exit(a.cmdOps(os.Args[2:]))

	default:
		fmt.Fprintf(os.Stderr, "lmx: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'lmx --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`lmx — Lamport mutual-exclusion simulator

A fixed set of peer processes coordinates exclusive access to a shared
critical section using logical clocks and REQUEST/ACKNOWLEDGE/RELEASE
messages only. No coordinator, no physical clock.

Usage:
  lmx <command> [flags]

Commands:
  run --peers N --duration D   Run a simulation; writes messageLog.csv and
                               criticalSectionLog.txt, optionally persists
                               the run to SQLite
  runs                         List persisted runs
  log [--run ID] [--since N]   Show a run's delivered messages (default:
                               the most recent run)
  ops [--run ID]               Show a run's critical-section operations
                               (default: the most recent run)

Environment:
  LMX_DB    SQLite database path (default: none, runs are not persisted)
  LMX_OUT   Output directory for the flat-file logs (default: output)

Query commands support --json for machine-readable output.

Exit codes:
  0  success
  1  error
  2  protocol invariant violation (simulation aborted)
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
