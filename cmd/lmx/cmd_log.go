package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/lamportsim/pkg/model"
)

func (a *app) cmdLog(args []string) int {
	flags := flag.NewFlagSet("log", flag.ContinueOnError)
	runID := flags.String("run", "", "run id (default: most recent run)")
	dbPath := flags.String("db", "", "SQLite database path")
	sinceTS := flags.Int64("since", 0, "fetch messages with timestamp >= this")
	limit := flags.Int("limit", 100, "max messages to return")
	kind := flags.String("kind", "", "filter by message kind")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	s, err := a.openStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: log: %v\n", err)
		return 1
	}
	defer s.Close()

	r, err := resolveRun(s, *runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: log: %v\n", err)
		return 1
	}

	msgs, err := s.ListMessages(r.ID, *sinceTS, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: log: %v\n", err)
		return 1
	}

	if *kind != "" {
		filtered := msgs[:0]
		for _, m := range msgs {
			if string(m.Kind) == *kind {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"run": r.ID, "messages": msgs, "count": len(msgs)})
		return 0
	}
	if len(msgs) == 0 {
		fmt.Println("no messages")
		return 0
	}
	for _, m := range msgs {
		switch m.Kind {
		case model.Request, model.Release:
			fmt.Printf("[ts=%d] %s %d -> %d (broadcast copy)\n", m.Timestamp, m.Kind, m.Sender, m.Receiver)
		default:
			fmt.Printf("[ts=%d] %s %d -> %d\n", m.Timestamp, m.Kind, m.Sender, m.Receiver)
		}
	}
	return 0
}
