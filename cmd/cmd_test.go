package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fakeyudi/eyetrial/internal/report"
	"github.com/fakeyudi/eyetrial/internal/store"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// resetFlags restores every flag to its default so state does not leak
// between executions of the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// vgsLog holds a complete Hit trial and an Abort trial without a target
// location.
var vgsLog = strings.Join([]string{
	"** CONVERTED FROM s01.edf",
	"MSG\t1000 TRIALID 1",
	"MSG\t1001 targetlocation [1160,540]",
	"MSG\t1100 FixationOff",
	"MSG\t1200 Target",
	"1200\t960.0\t540.0\t1000.0",
	"1202\t962.0\t541.0\t1000.0",
	"ESACC R\t1350\t40\t0\t0\t1160.0\t560.0\t6.0\t300",
	"MSG\t1400 TRIAL_VAR Response Hit",
	"MSG\t1401 TRIAL_RESULT 0",
	"MSG\t2000 TRIALID 2",
	"MSG\t2100 FixationOff",
	"MSG\t2200 Target",
	"ESACC R\t2350\t40\t0\t0\t1160.0\t560.0\t6.0\t300",
	"MSG\t2400 TRIAL_VAR Response Abort",
	"MSG\t2401 TRIAL_RESULT 0",
}, "\n") + "\n"

type workspace struct {
	base string
	out  string
	db   string
}

// newWorkspace isolates HOME, the working directory and the store, and lays
// out one VGS recording.
func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", filepath.Join(root, "home"))
	t.Chdir(root)

	ws := workspace{
		base: filepath.Join(root, "data"),
		out:  filepath.Join(root, "out"),
		db:   filepath.Join(root, "eyetrial.db"),
	}
	t.Setenv("EYETRIAL_DB_PATH", ws.db)

	dir := filepath.Join(ws.base, "VGS", "control", "s01")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.asc"), []byte(vgsLog), 0o644); err != nil {
		t.Fatal(err)
	}
	return ws
}

func (ws workspace) analyze(t *testing.T, extra ...string) string {
	t.Helper()
	args := append([]string{"analyze", "VGS", "--base-dir", ws.base, "--output-dir", ws.out}, extra...)
	out, err := executeCommand(rootCmd, args...)
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	return out
}

func TestAnalyzeWritesOutputs(t *testing.T) {
	ws := newWorkspace(t)
	out := ws.analyze(t)

	if !strings.Contains(out, "VGS: 1 file(s), 1 row(s), 1 failed trial(s)") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(ws.out, "VGS_analyzed.csv"))
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	res, err := (&report.CSVParser{}).Parse(data)
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Outcome != "Hit" || res.Rows[0].Latency != 150 {
		t.Errorf("unexpected rows: %+v", res.Rows)
	}

	logData, err := os.ReadFile(filepath.Join(ws.out, "VGS_bad_trials.txt"))
	if err != nil {
		t.Fatalf("read failure log: %v", err)
	}
	if !strings.HasPrefix(string(logData), `[VGS, control, s01, "MSG\t2100 FixationOff", `) {
		t.Errorf("unexpected failure log: %q", logData)
	}
}

func TestAnalyzeJSONAndStore(t *testing.T) {
	ws := newWorkspace(t)
	out := ws.analyze(t, "--format", "json", "--store")

	if _, err := os.Stat(filepath.Join(ws.out, "VGS_analyzed.json")); err != nil {
		t.Errorf("expected JSON table: %v", err)
	}
	if !strings.Contains(out, "stored run ") {
		t.Errorf("expected stored run id in output:\n%s", out)
	}

	db, err := store.Open(ws.db)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	runs, err := db.ListRuns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].RowCount != 1 || runs[0].FailureCount != 1 {
		t.Fatalf("unexpected stored runs: %+v", runs)
	}

	listing, err := executeCommand(rootCmd, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(listing, runs[0].ID) {
		t.Errorf("runs output missing %s:\n%s", runs[0].ID, listing)
	}
}

func TestAnalyzeUnknownTask(t *testing.T) {
	ws := newWorkspace(t)
	_, err := executeCommand(rootCmd, "analyze", "SACCADE", "--base-dir", ws.base)
	if err == nil || !strings.Contains(err.Error(), "unknown task") {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func TestAnalyzeMissingTaskDirectory(t *testing.T) {
	ws := newWorkspace(t)
	_, err := executeCommand(rootCmd, "analyze", "GAP", "--base-dir", ws.base, "--output-dir", ws.out)
	if err == nil {
		t.Fatal("expected error for missing GAP directory")
	}
}

func TestAnalyzeRejectsInvalidConfig(t *testing.T) {
	ws := newWorkspace(t)
	t.Setenv("EYETRIAL_SAMPLING_RATE", "-500")
	_, err := executeCommand(rootCmd, "analyze", "VGS", "--base-dir", ws.base)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("expected invalid configuration error, got %v", err)
	}
}

func TestTrialsCommand(t *testing.T) {
	ws := newWorkspace(t)
	path := filepath.Join(ws.base, "VGS", "control", "s01", "run.asc")

	out, err := executeCommand(rootCmd, "trials", path)
	if err != nil {
		t.Fatalf("trials: %v", err)
	}
	for _, want := range []string{"OUTCOME", "Hit", "Abort"} {
		if !strings.Contains(out, want) {
			t.Errorf("trials output missing %q:\n%s", want, out)
		}
	}

	_, err = executeCommand(rootCmd, "trials", filepath.Join(ws.base, "nope.asc"))
	if err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Errorf("expected file not found, got %v", err)
	}
}

func TestViewPlainCSVWithFailureLog(t *testing.T) {
	ws := newWorkspace(t)
	ws.analyze(t)

	out, err := executeCommand(rootCmd, "view", "--plain", filepath.Join(ws.out, "VGS_analyzed.csv"))
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	for _, want := range []string{"Task:      VGS", "Rows:      1", "Failures:  1", "control/s01"} {
		if !strings.Contains(out, want) {
			t.Errorf("view output missing %q:\n%s", want, out)
		}
	}
}

func TestViewStoredRun(t *testing.T) {
	ws := newWorkspace(t)
	ws.analyze(t, "--store")

	db, err := store.Open(ws.db)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := db.ListRuns(context.Background())
	db.Close()
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns: %v %v", runs, err)
	}

	out, err := executeCommand(rootCmd, "view", "--plain", "--run", runs[0].ID)
	if err != nil {
		t.Fatalf("view --run: %v", err)
	}
	if !strings.Contains(out, "Rows:      1") {
		t.Errorf("unexpected view output:\n%s", out)
	}

	_, err = executeCommand(rootCmd, "view", "--plain", "--run", "missing")
	if err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestViewNeedsInput(t *testing.T) {
	newWorkspace(t)
	_, err := executeCommand(rootCmd, "view")
	if err == nil {
		t.Fatal("expected error without file or --run")
	}
}

func TestSetupWritesGlobalConfig(t *testing.T) {
	newWorkspace(t)
	rootCmd.SetIn(strings.NewReader("57\n\n\n\n1000\n\n\nMGS\n"))
	defer rootCmd.SetIn(nil)

	out, err := executeCommand(rootCmd, "setup")
	if err != nil {
		t.Fatalf("setup: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved") {
		t.Errorf("unexpected setup output:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(os.Getenv("HOME"), ".config", "eyetrial", "config.json"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), `"viewing_distance_cm": 57`) ||
		!strings.Contains(string(data), `"sampling_rate": 1000`) {
		t.Errorf("config not written as expected:\n%s", data)
	}
}
