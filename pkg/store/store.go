// Package store persists finished simulation runs to SQLite: the run
// summary, the full audit log of delivered messages, and the
// critical-section operations. The simulator itself never touches the
// database while running; persistence happens once, after the transport
// has shut down, so a run can be inspected long after its flat-file logs
// are gone.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/daviddao/lamportsim/pkg/model"

	_ "modernc.org/sqlite"
)

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		peers      INTEGER NOT NULL,
		duration   INTEGER NOT NULL,
		started    TEXT NOT NULL,
		finished   TEXT NOT NULL,
		messages   INTEGER NOT NULL DEFAULT 0,
		operations INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id   TEXT NOT NULL REFERENCES runs(id),
		kind     TEXT NOT NULL,
		sender   INTEGER NOT NULL,
		receiver INTEGER NOT NULL,
		ts       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id, ts, sender);

	CREATE TABLE IF NOT EXISTS operations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL REFERENCES runs(id),
		seq        INTEGER NOT NULL,
		peer       INTEGER NOT NULL,
		from_value INTEGER NOT NULL,
		to_value   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_operations_run ON operations(run_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// SaveRun persists a finished run with its audit log and critical-section
// operations in one transaction. The message slice should already be in
// extended Lamport order; rows are inserted in slice order and read back
// by (ts, sender).
func (s *Store) SaveRun(r *model.Run, msgs []model.Message, ops []model.Operation) error {
	// Fixed-width fractional seconds keep string order equal to time order,
	// which ListRuns relies on.
	const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		_, err = tx.Exec(
			`INSERT INTO runs (id, peers, duration, started, finished, messages, operations)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Peers, r.Duration,
			r.Started.UTC().Format(timeLayout),
			r.Finished.UTC().Format(timeLayout),
			len(msgs), len(ops),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		msgStmt, err := tx.Prepare(
			`INSERT INTO messages (run_id, kind, sender, receiver, ts) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer msgStmt.Close()
		for _, m := range msgs {
			if _, err := msgStmt.Exec(r.ID, string(m.Kind), m.Sender, m.Receiver, m.Timestamp); err != nil {
				return fmt.Errorf("insert message %s: %w", m, err)
			}
		}

		opStmt, err := tx.Prepare(
			`INSERT INTO operations (run_id, seq, peer, from_value, to_value) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer opStmt.Close()
		for _, op := range ops {
			if _, err := opStmt.Exec(r.ID, op.Seq, op.Peer, op.From, op.To); err != nil {
				return fmt.Errorf("insert operation %d: %w", op.Seq, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
		return nil
	})
}

// GetRun retrieves a run summary by id.
func (s *Store) GetRun(id string) (*model.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, peers, duration, started, finished, messages, operations
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row.Scan)
}

// ListRuns returns all persisted runs, most recent first.
func (s *Store) ListRuns() ([]model.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, peers, duration, started, finished, messages, operations
		 FROM runs ORDER BY started DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(scan func(dest ...any) error) (*model.Run, error) {
	var r model.Run
	var startedStr, finishedStr string
	if err := scan(&r.ID, &r.Peers, &r.Duration, &startedStr, &finishedStr, &r.Messages, &r.Operations); err != nil {
		return nil, err
	}
	var parseErr error
	r.Started, parseErr = time.Parse(time.RFC3339Nano, startedStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse started time for run %s: %w", r.ID, parseErr)
	}
	r.Finished, parseErr = time.Parse(time.RFC3339Nano, finishedStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse finished time for run %s: %w", r.ID, parseErr)
	}
	return &r, nil
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// ListMessages returns a run's delivered messages with ts >= sinceTS in
// extended Lamport order.
func (s *Store) ListMessages(runID string, sinceTS int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT kind, sender, receiver, ts FROM messages
		 WHERE run_id = ? AND ts >= ?
		 ORDER BY ts ASC, sender ASC, id ASC LIMIT ?`,
		runID, sinceTS, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var kindStr string
		if err := rows.Scan(&kindStr, &m.Sender, &m.Receiver, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Kind = model.Kind(kindStr)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of persisted messages for a run.
func (s *Store) CountMessages(runID string) int64 {
	var count int64
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE run_id = ?`, runID,
	).Scan(&count); err != nil {
		return 0
	}
	return count
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// ListOperations returns a run's critical-section operations in entry
// order.
func (s *Store) ListOperations(runID string) ([]model.Operation, error) {
	rows, err := s.db.Query(
		`SELECT seq, peer, from_value, to_value FROM operations
		 WHERE run_id = ? ORDER BY seq ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		var op model.Operation
		if err := rows.Scan(&op.Seq, &op.Peer, &op.From, &op.To); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
