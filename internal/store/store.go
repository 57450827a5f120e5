// Package store persists analysis runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fakeyudi/eyetrial/internal/runner"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored invocation of the runner for a task.
type Run struct {
	ID           string    `json:"id"`
	Task         string    `json:"task"`
	BaseDir      string    `json:"base_dir"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Files        int       `json:"files"`
	RowCount     int       `json:"row_count"`
	FailureCount int       `json:"failure_count"`
}

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to ping database", goerr.V("path", path))
	}
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, goerr.Wrap(err, "failed to create tables", goerr.V("path", path))
	}
	return s, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		base_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		files INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		failure_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS trial_rows (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		task TEXT NOT NULL,
		grp TEXT NOT NULL,
		subject TEXT NOT NULL,
		outcome TEXT NOT NULL,
		latency INTEGER NOT NULL,
		velocity REAL,
		accuracy REAL,
		delay INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE TABLE IF NOT EXISTS failures (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		task TEXT NOT NULL,
		grp TEXT NOT NULL,
		subject TEXT NOT NULL,
		first_line TEXT NOT NULL,
		error TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`
	_, err := s.conn.Exec(query)
	return err
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveRun stores res with a fresh run ID in one transaction.
func (s *Store) SaveRun(ctx context.Context, baseDir string, res *runner.Result, startedAt, finishedAt time.Time) (*Run, error) {
	run := &Run{
		ID:           uuid.NewString(),
		Task:         res.Task,
		BaseDir:      baseDir,
		StartedAt:    startedAt.UTC(),
		FinishedAt:   finishedAt.UTC(),
		Files:        res.Files,
		RowCount:     len(res.Rows),
		FailureCount: len(res.Failures),
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, task, base_dir, started_at, finished_at, files, row_count, failure_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Task, run.BaseDir,
		run.StartedAt.Format(timeLayout), run.FinishedAt.Format(timeLayout),
		run.Files, run.RowCount, run.FailureCount,
	); err != nil {
		return nil, goerr.Wrap(err, "failed to insert run", goerr.V("task", run.Task))
	}

	for i, r := range res.Rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trial_rows (run_id, seq, task, grp, subject, outcome, latency, velocity, accuracy, delay)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, r.Task, r.Group, r.Subject, r.Outcome, r.Latency,
			nullable(r.Velocity), nullable(r.Accuracy), r.Delay,
		); err != nil {
			return nil, goerr.Wrap(err, "failed to insert row", goerr.V("seq", i))
		}
	}
	for i, f := range res.Failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO failures (run_id, seq, task, grp, subject, first_line, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, f.Task, f.Group, f.Subject, f.FirstLine, f.Error,
		); err != nil {
			return nil, goerr.Wrap(err, "failed to insert failure", goerr.V("seq", i))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit run", goerr.V("id", run.ID))
	}
	return run, nil
}

// nullable maps non-finite floats to NULL; they load back as NaN.
func nullable(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, task, base_dir, started_at, finished_at, files, row_count, failure_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run               Run
		started, finished string
	)
	if err := sc.Scan(&run.ID, &run.Task, &run.BaseDir, &started, &finished,
		&run.Files, &run.RowCount, &run.FailureCount); err != nil {
		return nil, err
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, goerr.Wrap(err, "invalid started_at", goerr.V("id", run.ID))
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, goerr.Wrap(err, "invalid finished_at", goerr.V("id", run.ID))
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns the run header for id, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrRunNotFound, "no such run", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get run", goerr.V("id", id))
	}
	return run, nil
}

// Rows returns the feature rows of a run in the order they were saved.
func (s *Store) Rows(ctx context.Context, id string) ([]runner.Row, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT task, grp, subject, outcome, latency, velocity, accuracy, delay
		 FROM trial_rows WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query rows", goerr.V("id", id))
	}
	defer rows.Close()

	out := []runner.Row{}
	for rows.Next() {
		var (
			r                  runner.Row
			velocity, accuracy sql.NullFloat64
		)
		if err := rows.Scan(&r.Task, &r.Group, &r.Subject, &r.Outcome, &r.Latency,
			&velocity, &accuracy, &r.Delay); err != nil {
			return nil, goerr.Wrap(err, "failed to scan row", goerr.V("id", id))
		}
		r.Velocity = fromNullable(velocity)
		r.Accuracy = fromNullable(accuracy)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Failures returns the failure records of a run in the order they were saved.
func (s *Store) Failures(ctx context.Context, id string) ([]runner.Failure, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT task, grp, subject, first_line, error
		 FROM failures WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query failures", goerr.V("id", id))
	}
	defer rows.Close()

	out := []runner.Failure{}
	for rows.Next() {
		var f runner.Failure
		if err := rows.Scan(&f.Task, &f.Group, &f.Subject, &f.FirstLine, &f.Error); err != nil {
			return nil, goerr.Wrap(err, "failed to scan failure", goerr.V("id", id))
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LoadRun rebuilds the runner.Result stored under id.
func (s *Store) LoadRun(ctx context.Context, id string) (*Run, *runner.Result, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.Rows(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	failures, err := s.Failures(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return run, &runner.Result{
		Task:     run.Task,
		Files:    run.Files,
		Rows:     rows,
		Failures: failures,
	}, nil
}
