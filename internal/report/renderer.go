// Package report serializes analysis results: the feature table as CSV or
// JSON and the failed-trial log as text.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fakeyudi/eyetrial/internal/runner"
)

// ResultRenderer serializes a task result to bytes.
type ResultRenderer interface {
	Render(res *runner.Result) ([]byte, error)
	Ext() string
}

// RendererFor returns the renderer for a format name ("csv" or "json").
func RendererFor(format string) (ResultRenderer, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return &CSVRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want csv or json)", format)
	}
}

// CSVRenderer writes the feature table with a header row. Failures are not
// part of the table; see FailureLogRenderer.
type CSVRenderer struct{}

func (r *CSVRenderer) Ext() string { return ".csv" }

func (r *CSVRenderer) Render(res *runner.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(runner.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range res.Rows {
		record := []string{
			row.Task,
			row.Group,
			row.Subject,
			row.Outcome,
			strconv.FormatInt(row.Latency, 10),
			formatFloat(row.Velocity),
			formatFloat(row.Accuracy),
			strconv.FormatInt(row.Delay, 10),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// formatFloat renders the shortest exact form; infinities and NaN come out
// as +Inf, -Inf and NaN.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// JSONRenderer writes rows and failures as one indented document.
// Non-finite velocities and accuracies are written as null.
type JSONRenderer struct{}

func (r *JSONRenderer) Ext() string { return ".json" }

// JSONRow is a Row with non-finite measures as null.
type JSONRow struct {
	Task     string   `json:"task"`
	Group    string   `json:"group"`
	Subject  string   `json:"subject"`
	Outcome  string   `json:"outcome"`
	Latency  int64    `json:"latency"`
	Velocity *float64 `json:"velocity"`
	Accuracy *float64 `json:"accuracy"`
	Delay    int64    `json:"delay"`
}

type jsonResult struct {
	Task     string           `json:"task"`
	Files    int              `json:"files"`
	Rows     []JSONRow        `json:"rows"`
	Failures []runner.Failure `json:"failures"`
}

func (r *JSONRenderer) Render(res *runner.Result) ([]byte, error) {
	out := jsonResult{
		Task:     res.Task,
		Files:    res.Files,
		Rows:     JSONRows(res.Rows),
		Failures: res.Failures,
	}
	if out.Failures == nil {
		out.Failures = []runner.Failure{}
	}
	return json.MarshalIndent(out, "", "  ")
}

// JSONRows converts rows for encoding/json, which rejects NaN and Inf.
func JSONRows(rows []runner.Row) []JSONRow {
	out := make([]JSONRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, JSONRow{
			Task:     row.Task,
			Group:    row.Group,
			Subject:  row.Subject,
			Outcome:  row.Outcome,
			Latency:  row.Latency,
			Velocity: finite(row.Velocity),
			Accuracy: finite(row.Accuracy),
			Delay:    row.Delay,
		})
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// FailureLogRenderer writes one line per failed trial:
// [task, group, subject, "first line", "error"].
type FailureLogRenderer struct{}

func (r *FailureLogRenderer) Render(failures []runner.Failure) []byte {
	var sb strings.Builder
	for _, f := range failures {
		fmt.Fprintf(&sb, "[%s, %s, %s, %s, %s]\n",
			f.Task, f.Group, f.Subject,
			strconv.Quote(f.FirstLine), strconv.Quote(f.Error))
	}
	return []byte(sb.String())
}
