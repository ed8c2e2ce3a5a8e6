package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/lamportsim/pkg/model"
	"github.com/daviddao/lamportsim/pkg/transport"
)

func (a *app) cmdRun(args []string) int {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	peers := flags.Int("peers", 0, "number of peer processes (>= 2)")
	duration := flags.Int64("duration", 0, "time horizon in logical-clock ticks (> 0)")
	outDir := flags.String("out", a.outDir, "directory for the flat-file logs")
	dbPath := flags.String("db", a.dbPath, "SQLite database to persist the run (empty = none)")
	quiet := flags.Bool("quiet", false, "suppress the per-action console trace")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *peers < 2 || *duration <= 0 {
		fmt.Fprintln(os.Stderr, "usage: lmx run --peers N --duration D [--out DIR] [--db PATH] [--quiet] [--json]")
		return 1
	}

	var trace io.Writer = os.Stdout
	if *quiet || *jsonOut {
		trace = io.Discard
	}

	tr, err := transport.New(transport.Config{Peers: *peers, Duration: *duration, Trace: trace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "lmx: run: %v\n", err)
		return 1
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	simErr := tr.Run()
	finished := time.Now().UTC()

	audit := tr.Audit()
	ops := tr.Operations()

	// Log-file and database failures are reported but never change the
	// simulation's outcome.
	if err := writeLogs(tr, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "lmx: run: %v\n", err)
	}
	if *dbPath != "" {
		if err := a.persistRun(*dbPath, &model.Run{
			ID:       runID,
			Peers:    *peers,
			Duration: *duration,
			Started:  started,
			Finished: finished,
		}, audit, ops); err != nil {
			fmt.Fprintf(os.Stderr, "lmx: run: persist: %v\n", err)
		}
	}

	if simErr != nil {
		fmt.Fprintf(os.Stderr, "lmx: run %s aborted: %v\n", runID, simErr)
		return 2
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"run":          runID,
			"peers":        *peers,
			"duration":     *duration,
			"messages":     len(audit),
			"operations":   len(ops),
			"critical_int": tr.CriticalInt(),
		})
	} else {
		fmt.Printf("run %s finished: %d peers, horizon %d\n", runID, *peers, *duration)
		fmt.Printf("%d messages delivered, %d critical-section operations, critical int ends at %d\n",
			len(audit), len(ops), tr.CriticalInt())
	}
	return 0
}

// writeLogs writes messageLog.csv and criticalSectionLog.txt under dir.
func writeLogs(tr *transport.Transport, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	msgFile, err := os.Create(filepath.Join(dir, "messageLog.csv"))
	if err != nil {
		return err
	}
	defer msgFile.Close()
	if err := tr.WriteMessageLog(msgFile); err != nil {
		return err
	}

	csFile, err := os.Create(filepath.Join(dir, "criticalSectionLog.txt"))
	if err != nil {
		return err
	}
	defer csFile.Close()
	return tr.WriteCriticalSectionLog(csFile)
}

func (a *app) persistRun(dbPath string, r *model.Run, msgs []model.Message, ops []model.Operation) error {
	s, err := a.openStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveRun(r, msgs, ops)
}
