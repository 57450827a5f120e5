// Package runner turns the session recordings of one task into a table of
// per-trial feature rows and a list of trials that failed extraction.
package runner

import (
	"context"
	"os"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/fakeyudi/eyetrial/internal/feature"
	"github.com/fakeyudi/eyetrial/internal/gaze"
	"github.com/fakeyudi/eyetrial/internal/layout"
	"github.com/fakeyudi/eyetrial/internal/logging"
	"github.com/fakeyudi/eyetrial/internal/trial"
)

// Columns is the header of the feature table.
var Columns = []string{"task", "group", "subject", "outcome", "latency", "velocity", "accuracy", "delay"}

// Row is the feature set of one successfully processed trial.
type Row struct {
	Task     string  `json:"task"`
	Group    string  `json:"group"`
	Subject  string  `json:"subject"`
	Outcome  string  `json:"outcome"`
	Latency  int64   `json:"latency"`
	Velocity float64 `json:"velocity"`
	Accuracy float64 `json:"accuracy"`
	Delay    int64   `json:"delay"`
}

// Failure identifies a trial whose extraction failed and why.
type Failure struct {
	Task      string `json:"task"`
	Group     string `json:"group"`
	Subject   string `json:"subject"`
	FirstLine string `json:"first_line"`
	Error     string `json:"error"`
}

// Result is everything produced for one task.
type Result struct {
	Task     string             `json:"task"`
	Files    int                `json:"files"`
	Rows     []Row              `json:"rows"`
	Failures []Failure          `json:"failures"`
	Skipped  []layout.Violation `json:"skipped,omitempty"`
}

// Options configures a Runner.
type Options struct {
	BaseDir string
	Pattern string
	Display gaze.Display
	Workers int
}

// Runner processes every session of a task.
type Runner struct {
	opts Options
}

// New returns a Runner. Workers below 1 are treated as 1.
func New(opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{opts: opts}
}

// Run discovers the task's sessions and processes them. Output order follows
// discovery order whatever the worker count. Any file-level error aborts the
// run; trial-level errors become Failures.
func (r *Runner) Run(ctx context.Context, task feature.TaskKind) (*Result, error) {
	logger := logging.From(ctx).With("task", task)

	sessions, violations, err := layout.Discover(r.opts.BaseDir, task.String(), r.opts.Pattern)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		logger.Warn("skipping file outside task/group/subject layout", "path", v.Path, "reason", v.Reason)
	}

	perFile := make([]*SessionResult, len(sessions))
	if err := r.forEach(ctx, len(sessions), func(i int) error {
		res, err := r.RunSession(ctx, task, sessions[i])
		if err != nil {
			return err
		}
		perFile[i] = res
		return nil
	}); err != nil {
		return nil, err
	}

	result := &Result{
		Task:     task.String(),
		Files:    len(sessions),
		Rows:     []Row{},
		Failures: []Failure{},
		Skipped:  violations,
	}
	for _, res := range perFile {
		result.Rows = append(result.Rows, res.Rows...)
		result.Failures = append(result.Failures, res.Failures...)
	}

	logger.Info("task analyzed",
		"files", result.Files,
		"rows", len(result.Rows),
		"failures", len(result.Failures),
		"skipped_files", len(result.Skipped))
	return result, nil
}

// forEach runs fn for indices [0, n) on up to Workers goroutines and returns
// the first error. No new index is started after an error or cancellation.
func (r *Runner) forEach(ctx context.Context, n int, fn func(i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	workers := min(r.opts.Workers, n)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := fn(i); err != nil {
					fail(err)
				}
			}
		}()
	}

dispatch:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	// cancellation by the caller, not by a failed job
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// SessionResult is the output for one recording.
type SessionResult struct {
	Session  layout.Session
	Trials   int
	Rows     []Row
	Failures []Failure
	Ignored  int // trials whose outcome is outside the accepted set
}

// RunSession segments one recording and extracts features for every trial.
func (r *Runner) RunSession(ctx context.Context, task feature.TaskKind, s layout.Session) (*SessionResult, error) {
	logger := logging.From(ctx)
	logger.Debug("processing session", "path", s.Path, "group", s.Group, "subject", s.Subject)

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open session", goerr.V("path", s.Path))
	}
	defer f.Close()

	trials, err := trial.Segment(f, r.opts.Display)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to segment session", goerr.V("path", s.Path))
	}

	res := &SessionResult{Session: s, Trials: len(trials)}
	for _, tr := range trials {
		out := ProcessTrial(task, s, tr, r.opts.Display)
		switch {
		case out.Row != nil:
			res.Rows = append(res.Rows, *out.Row)
		case out.Failure != nil:
			res.Failures = append(res.Failures, *out.Failure)
		default:
			res.Ignored++
		}
	}

	logger.Debug("session done",
		"path", s.Path,
		"trials", res.Trials,
		"rows", len(res.Rows),
		"failures", len(res.Failures))
	return res, nil
}

// TrialResult is the outcome of processing one trial: exactly one of Row or
// Failure is set, or neither when the trial's outcome is not analyzed.
type TrialResult struct {
	Row     *Row
	Failure *Failure
}

// ProcessTrial classifies one trial and extracts its features.
func ProcessTrial(task feature.TaskKind, s layout.Session, tr trial.Trial, d gaze.Display) TrialResult {
	failure := func(err error) TrialResult {
		return TrialResult{Failure: &Failure{
			Task:      task.String(),
			Group:     s.Group,
			Subject:   s.Subject,
			FirstLine: tr.FirstLine(),
			Error:     err.Error(),
		}}
	}

	outcome, err := feature.Outcome(tr.Lines)
	if err != nil {
		return failure(err)
	}
	if !feature.Accepted(outcome) {
		return TrialResult{}
	}

	f, err := feature.Extract(tr.Lines, task, d)
	if err != nil {
		return failure(err)
	}
	return TrialResult{Row: &Row{
		Task:     task.String(),
		Group:    s.Group,
		Subject:  s.Subject,
		Outcome:  outcome,
		Latency:  f.Latency,
		Velocity: f.Velocity,
		Accuracy: f.Accuracy,
		Delay:    f.Delay,
	}}
}
