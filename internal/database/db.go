package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/meterfeed/pkg/models"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		past_due INTEGER DEFAULT 0,
		outcome TEXT NOT NULL,
		format TEXT NOT NULL,
		since TEXT,
		until TEXT,
		points INTEGER DEFAULT 0,
		row_count INTEGER DEFAULT 0,
		bytes INTEGER DEFAULT 0,
		published INTEGER DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertRun records a run. Recording the same ID again replaces the row.
func (db *DB) InsertRun(run *models.Run) error {
	query := `
	INSERT OR REPLACE INTO runs
		(id, started_at, finished_at, past_due, outcome, format, since, until, points, row_count, bytes, published, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var finished string
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC().Format(timeLayout)
	}

	_, err := db.conn.Exec(query,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		finished,
		boolToInt(run.PastDue),
		run.Outcome,
		run.Format,
		run.Since,
		run.Until,
		run.Points,
		run.Rows,
		run.Bytes,
		boolToInt(run.Published),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (db *DB) ListRuns(limit int) ([]models.Run, error) {
	query := `
	SELECT id, started_at, finished_at, past_due, outcome, format, since, until, points, row_count, bytes, published, error
	FROM runs
	ORDER BY started_at DESC
	LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var results []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *run)
	}

	return results, rows.Err()
}

// LatestRun returns the most recent run, or nil when none are recorded
func (db *DB) LatestRun() (*models.Run, error) {
	runs, err := db.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// LastSuccess returns the most recent run that published, or nil
func (db *DB) LastSuccess() (*models.Run, error) {
	query := `
	SELECT id, started_at, finished_at, past_due, outcome, format, since, until, points, row_count, bytes, published, error
	FROM runs
	WHERE outcome = ? AND published = 1
	ORDER BY started_at DESC
	LIMIT 1
	`

	run, err := scanRun(db.conn.QueryRow(query, models.OutcomeOK))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CountByOutcome returns the number of runs per outcome
func (db *DB) CountByOutcome() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var started string
	var finished, since, until, errMsg sql.NullString
	var pastDue, published int

	err := row.Scan(
		&run.ID,
		&started,
		&finished,
		&pastDue,
		&run.Outcome,
		&run.Format,
		&since,
		&until,
		&run.Points,
		&run.Rows,
		&run.Bytes,
		&published,
		&errMsg,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.StartedAt, err = time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if finished.String != "" {
		run.FinishedAt, err = time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	run.PastDue = pastDue != 0
	run.Published = published != 0
	run.Since = since.String
	run.Until = until.String
	run.Error = errMsg.String

	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
