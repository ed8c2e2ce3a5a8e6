package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/daviddao/lamportsim/pkg/model"
	"github.com/daviddao/lamportsim/pkg/store"
)

// app holds shared state for all CLI subcommands.
type app struct {
	dbPath string // default database from LMX_DB
	outDir string // default log directory from LMX_OUT
}

func newApp() *app {
	return &app{
		dbPath: envOr("LMX_DB", ""),
		outDir: envOr("LMX_OUT", "output"),
	}
}

// openStore opens the database at path, falling back to the LMX_DB
// default. Query commands need one; run works without.
func (a *app) openStore(path string) (store.StoreInterface, error) {
	if path == "" {
		path = a.dbPath
	}
	if path == "" {
		return nil, fmt.Errorf("no database: pass --db or set LMX_DB")
	}
	s, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", path, err)
	}
	return s, nil
}

// resolveRun returns the run named by id, or the most recent run when id
// is empty.
func resolveRun(s store.StoreInterface, id string) (*model.Run, error) {
	if id != "" {
		return s.GetRun(id)
	}
	runs, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no persisted runs")
	}
	return &runs[0], nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
