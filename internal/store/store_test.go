package store_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/fakeyudi/eyetrial/internal/runner"
	"github.com/fakeyudi/eyetrial/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "eyetrial.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result() *runner.Result {
	return &runner.Result{
		Task:  "MGS",
		Files: 3,
		Rows: []runner.Row{
			{Task: "MGS", Group: "g1", Subject: "s1", Outcome: "Hit", Latency: 250, Velocity: 150, Accuracy: 0.5, Delay: 2000},
			{Task: "MGS", Group: "g1", Subject: "s2", Outcome: "a", Latency: 90, Velocity: math.Inf(1), Accuracy: 2, Delay: 0},
		},
		Failures: []runner.Failure{
			{Task: "MGS", Group: "g2", Subject: "s3", FirstLine: "MSG\t10 FixationOff", Error: "no targetlocation in trial"},
		},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	saved, err := s.SaveRun(ctx, "/data", result(), started, finished)
	gt.NoError(t, err)
	gt.True(t, saved.ID != "")
	gt.Equal(t, saved.RowCount, 2)
	gt.Equal(t, saved.FailureCount, 1)

	run, res, err := s.LoadRun(ctx, saved.ID)
	gt.NoError(t, err)
	gt.Equal(t, *run, *saved)
	gt.Equal(t, res.Task, "MGS")
	gt.Equal(t, res.Files, 3)
	gt.A(t, res.Rows).Length(2)
	gt.Equal(t, res.Rows[0], result().Rows[0])
	gt.True(t, math.IsNaN(res.Rows[1].Velocity))
	gt.Equal(t, res.Rows[1].Accuracy, 2.0)
	gt.Equal(t, res.Failures, result().Failures)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	runs, err := s.ListRuns(ctx)
	gt.NoError(t, err)
	gt.A(t, runs).Length(0)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	older, err := s.SaveRun(ctx, ".", result(), base, base.Add(time.Second))
	gt.NoError(t, err)
	newer, err := s.SaveRun(ctx, ".", result(), base.Add(500*time.Millisecond), base.Add(2*time.Second))
	gt.NoError(t, err)

	runs, err = s.ListRuns(ctx)
	gt.NoError(t, err)
	gt.A(t, runs).Length(2)
	gt.Equal(t, runs[0].ID, newer.ID)
	gt.Equal(t, runs[1].ID, older.ID)
}

func TestGetRunNotFound(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.GetRun(ctx, "missing")
	gt.True(t, errors.Is(err, store.ErrRunNotFound))

	_, err = s.Rows(ctx, "missing")
	gt.True(t, errors.Is(err, store.ErrRunNotFound))

	_, _, err = s.LoadRun(ctx, "missing")
	gt.True(t, errors.Is(err, store.ErrRunNotFound))
}

func TestSaveEmptyResult(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	now := time.Now()
	saved, err := s.SaveRun(ctx, ".", &runner.Result{Task: "GAP"}, now, now)
	gt.NoError(t, err)

	rows, err := s.Rows(ctx, saved.ID)
	gt.NoError(t, err)
	gt.A(t, rows).Length(0)
	failures, err := s.Failures(ctx, saved.ID)
	gt.NoError(t, err)
	gt.A(t, failures).Length(0)
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "eyetrial.db")

	s, err := store.Open(path)
	gt.NoError(t, err)
	now := time.Now()
	saved, err := s.SaveRun(ctx, ".", result(), now, now)
	gt.NoError(t, err)
	gt.NoError(t, s.Close())

	s, err = store.Open(path)
	gt.NoError(t, err)
	defer s.Close()
	run, err := s.GetRun(ctx, saved.ID)
	gt.NoError(t, err)
	gt.Equal(t, run.Task, "MGS")
}
