package runner_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/fakeyudi/eyetrial/internal/feature"
	"github.com/fakeyudi/eyetrial/internal/gaze"
	"github.com/fakeyudi/eyetrial/internal/layout"
	"github.com/fakeyudi/eyetrial/internal/runner"
	"github.com/fakeyudi/eyetrial/internal/trial"
)

var display = gaze.Display{PPD: 40, XPixels: 1920, YPixels: 1080, SamplingRate: 500}

// twoTrialLog has a complete Hit trial and an Abort trial without a target
// location.
const twoTrialLog = `** CONVERTED FROM s01.edf
MSG	1000 TRIALID 1
MSG	1001 targetlocation [1160,540]
MSG	1100 FixationOff
MSG	1200 Target
1200	960.0	540.0	1000.0
1202	962.0	541.0	1000.0
ESACC R	1350	40	0	0	1160.0	560.0	6.0	300
MSG	1400 TRIAL_VAR Response Hit
MSG	1401 TRIAL_RESULT 0
MSG	2000 TRIALID 2
MSG	2100 FixationOff
MSG	2200 Target
ESACC R	2350	40	0	0	1160.0	560.0	6.0	300
MSG	2400 TRIAL_VAR Response Abort
MSG	2401 TRIAL_RESULT 0
`

const ignoredTrialLog = `MSG	1 TRIALID 1
MSG	2 TRIAL_VAR Response Practice
MSG	3 TRIAL_RESULT 0
MSG	4 TRIALID 2
MSG	5 nothing recorded
MSG	6 TRIAL_RESULT 0
`

func writeSession(t *testing.T, base, task, group, subject, content string) string {
	t.Helper()
	dir := filepath.Join(base, task, group, subject)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "run.asc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEndToEnd(t *testing.T) {
	base := t.TempDir()
	writeSession(t, base, "VGS", "control", "s01", twoTrialLog)

	r := runner.New(runner.Options{BaseDir: base, Display: display})
	res, err := r.Run(context.Background(), feature.VisuallyGuided)
	gt.NoError(t, err)

	gt.Equal(t, res.Files, 1)
	gt.A(t, res.Rows).Length(1)
	gt.A(t, res.Failures).Length(1)

	gt.Equal(t, res.Rows[0], runner.Row{
		Task:     "VGS",
		Group:    "control",
		Subject:  "s01",
		Outcome:  "Hit",
		Latency:  150,
		Velocity: 150,
		Accuracy: 0.5,
		Delay:    0,
	})

	f := res.Failures[0]
	gt.Equal(t, f.Task, "VGS")
	gt.Equal(t, f.Group, "control")
	gt.Equal(t, f.Subject, "s01")
	gt.Equal(t, f.FirstLine, "MSG\t2100 FixationOff")
	gt.S(t, f.Error).Contains("targetlocation")
}

func TestRunSkipsUnacceptedAndRecordsMissingOutcome(t *testing.T) {
	base := t.TempDir()
	writeSession(t, base, "GAP", "g", "s", ignoredTrialLog)

	r := runner.New(runner.Options{BaseDir: base, Display: display})
	res, err := r.Run(context.Background(), feature.Gap)
	gt.NoError(t, err)
	gt.A(t, res.Rows).Length(0)
	gt.A(t, res.Failures).Length(1)
	gt.S(t, res.Failures[0].Error).Contains("TRIAL_VAR Response")
}

func TestRunIdempotentAcrossWorkerCounts(t *testing.T) {
	base := t.TempDir()
	for i := 0; i < 6; i++ {
		writeSession(t, base, "MGS", fmt.Sprintf("g%d", i%2), fmt.Sprintf("s%02d", i), twoTrialLog)
	}

	serial, err := runner.New(runner.Options{BaseDir: base, Display: display}).
		Run(context.Background(), feature.MemoryGuided)
	gt.NoError(t, err)
	again, err := runner.New(runner.Options{BaseDir: base, Display: display}).
		Run(context.Background(), feature.MemoryGuided)
	gt.NoError(t, err)
	parallel, err := runner.New(runner.Options{BaseDir: base, Display: display, Workers: 4}).
		Run(context.Background(), feature.MemoryGuided)
	gt.NoError(t, err)

	gt.A(t, serial.Rows).Length(6)
	gt.A(t, serial.Failures).Length(6)
	gt.Equal(t, *serial, *again)
	gt.Equal(t, *serial, *parallel)
}

func TestRunReportsLayoutViolations(t *testing.T) {
	base := t.TempDir()
	writeSession(t, base, "VGS", "control", "s01", twoTrialLog)
	stray := filepath.Join(base, "VGS", "loose.asc")
	gt.NoError(t, os.WriteFile(stray, []byte(twoTrialLog), 0o644))

	res, err := runner.New(runner.Options{BaseDir: base, Display: display}).
		Run(context.Background(), feature.VisuallyGuided)
	gt.NoError(t, err)
	gt.Equal(t, res.Files, 1)
	gt.A(t, res.Skipped).Length(1)
	gt.Equal(t, res.Skipped[0].Path, stray)
}

func TestRunMissingTaskDirectory(t *testing.T) {
	_, err := runner.New(runner.Options{BaseDir: t.TempDir(), Display: display}).
		Run(context.Background(), feature.Gap)
	gt.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	base := t.TempDir()
	writeSession(t, base, "VGS", "control", "s01", twoTrialLog)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.New(runner.Options{BaseDir: base, Display: display}).
		Run(ctx, feature.VisuallyGuided)
	gt.Error(t, err)
}

func TestRunUnreadableFileAborts(t *testing.T) {
	base := t.TempDir()
	// A directory named like a session file cannot be read as one.
	dir := filepath.Join(base, "VGS", "g", "s", "broken.asc")
	gt.NoError(t, os.MkdirAll(dir, 0o755))

	r := runner.New(runner.Options{BaseDir: base, Display: display})
	_, err := r.RunSession(context.Background(), feature.VisuallyGuided, layout.Session{
		Task: "VGS", Group: "g", Subject: "s", Path: dir,
	})
	gt.Error(t, err)
}

func TestProcessTrial(t *testing.T) {
	s := layout.Session{Task: "VGS", Group: "g", Subject: "s"}
	trials, err := trial.Segment(strings.NewReader(twoTrialLog), display)
	gt.NoError(t, err)
	gt.A(t, trials).Length(2)

	hit := runner.ProcessTrial(feature.VisuallyGuided, s, trials[0], display)
	gt.True(t, hit.Row != nil)
	gt.True(t, hit.Failure == nil)

	abort := runner.ProcessTrial(feature.VisuallyGuided, s, trials[1], display)
	gt.True(t, abort.Row == nil)
	gt.True(t, abort.Failure != nil)

	empty := runner.ProcessTrial(feature.VisuallyGuided, s, trial.Trial{}, display)
	gt.True(t, empty.Failure != nil)
	gt.Equal(t, empty.Failure.FirstLine, "")
}
