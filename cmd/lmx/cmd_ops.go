package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdOps(args []string) int {
	flags := flag.NewFlagSet("ops", flag.ContinueOnError)
	runID := flags.String("run", "", "run id (default: most recent run)")
	dbPath := flags.String("db", "", "SQLite database path")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	s, err := a.openStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: ops: %v\n", err)
		return 1
	}
	defer s.Close()

	r, err := resolveRun(s, *runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: ops: %v\n", err)
		return 1
	}

	ops, err := s.ListOperations(r.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: ops: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"run": r.ID, "operations": ops, "count": len(ops)})
		return 0
	}
	if len(ops) == 0 {
		fmt.Println("no operations")
		return 0
	}
	for _, op := range ops {
		fmt.Println(op.String())
	}
	return 0
}
