package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fakeyudi/eyetrial/internal/runner"
)

// TableFile and FailureLogFile name a task's output files.
func TableFile(task, ext string) string { return task + "_analyzed" + ext }
func FailureLogFile(task string) string { return task + "_bad_trials.txt" }

// Paths lists the files written for one task.
type Paths struct {
	Table      string
	FailureLog string
}

// WriteResult renders res into dir as the feature table and failure log.
func WriteResult(dir string, res *runner.Result, r ResultRenderer) (Paths, error) {
	table, err := r.Render(res)
	if err != nil {
		return Paths{}, fmt.Errorf("render %s results: %w", res.Task, err)
	}
	paths := Paths{
		Table:      filepath.Join(dir, TableFile(res.Task, r.Ext())),
		FailureLog: filepath.Join(dir, FailureLogFile(res.Task)),
	}
	if err := WriteFile(paths.Table, table); err != nil {
		return Paths{}, err
	}
	if err := WriteFile(paths.FailureLog, (&FailureLogRenderer{}).Render(res.Failures)); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// WriteFile writes data atomically via a temp file + os.Rename.
func WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
