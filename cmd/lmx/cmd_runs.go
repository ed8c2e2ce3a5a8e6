package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdRuns(args []string) int {
	flags := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := flags.String("db", "", "SQLite database path")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	s, err := a.openStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: runs: %v\n", err)
		return 1
	}
	defer s.Close()

	runs, err := s.ListRuns()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: runs: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"runs": runs, "count": len(runs)})
		return 0
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return 0
	}
	for _, r := range runs {
		fmt.Printf("%s  peers=%d horizon=%d msgs=%d ops=%d started=%s\n",
			r.ID, r.Peers, r.Duration, r.Messages, r.Operations,
			r.Started.Format("2006-01-02 15:04:05"))
	}
	return 0
}
