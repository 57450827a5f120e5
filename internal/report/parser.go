package report

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fakeyudi/eyetrial/internal/runner"
)

// ResultParser reads a rendered result back into structured data.
type ResultParser interface {
	Parse(data []byte) (*runner.Result, error)
}

// ParserFor picks a parser from a file extension.
func ParserFor(ext string) ResultParser {
	if strings.EqualFold(ext, ".json") {
		return &JSONParser{}
	}
	return &CSVParser{}
}

// CSVParser parses a feature table written by CSVRenderer.
type CSVParser struct{}

func (p *CSVParser) Parse(data []byte) (*runner.Result, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("not a valid result table: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("not a valid result table: missing header")
	}
	if strings.Join(records[0], ",") != strings.Join(runner.Columns, ",") {
		return nil, fmt.Errorf("not a valid result table: unexpected header %v", records[0])
	}

	res := &runner.Result{Rows: []runner.Row{}, Failures: []runner.Failure{}}
	for i, rec := range records[1:] {
		row, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("not a valid result table: row %d: %w", i+1, err)
		}
		if res.Task == "" {
			res.Task = row.Task
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func parseRecord(rec []string) (runner.Row, error) {
	latency, err := strconv.ParseInt(rec[4], 10, 64)
	if err != nil {
		return runner.Row{}, fmt.Errorf("latency: %w", err)
	}
	velocity, err := strconv.ParseFloat(rec[5], 64)
	if err != nil {
		return runner.Row{}, fmt.Errorf("velocity: %w", err)
	}
	accuracy, err := strconv.ParseFloat(rec[6], 64)
	if err != nil {
		return runner.Row{}, fmt.Errorf("accuracy: %w", err)
	}
	delay, err := strconv.ParseInt(rec[7], 10, 64)
	if err != nil {
		return runner.Row{}, fmt.Errorf("delay: %w", err)
	}
	return runner.Row{
		Task:     rec[0],
		Group:    rec[1],
		Subject:  rec[2],
		Outcome:  rec[3],
		Latency:  latency,
		Velocity: velocity,
		Accuracy: accuracy,
		Delay:    delay,
	}, nil
}

// JSONParser parses a document written by JSONRenderer. Null measures come
// back as NaN.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*runner.Result, error) {
	var doc jsonResult
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON result: %w", err)
	}
	res := &runner.Result{
		Task:     doc.Task,
		Files:    doc.Files,
		Rows:     make([]runner.Row, 0, len(doc.Rows)),
		Failures: doc.Failures,
	}
	if res.Failures == nil {
		res.Failures = []runner.Failure{}
	}
	for _, r := range doc.Rows {
		res.Rows = append(res.Rows, runner.Row{
			Task:     r.Task,
			Group:    r.Group,
			Subject:  r.Subject,
			Outcome:  r.Outcome,
			Latency:  r.Latency,
			Velocity: orNaN(r.Velocity),
			Accuracy: orNaN(r.Accuracy),
			Delay:    r.Delay,
		})
	}
	return res, nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ParseFailureLog reads lines written by FailureLogRenderer.
func ParseFailureLog(data []byte) ([]runner.Failure, error) {
	var failures []runner.Failure
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f, err := parseFailureLine(line)
		if err != nil {
			return nil, fmt.Errorf("failure log line %d: %w", n, err)
		}
		failures = append(failures, f)
	}
	return failures, scanner.Err()
}

func parseFailureLine(line string) (runner.Failure, error) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return runner.Failure{}, fmt.Errorf("missing brackets")
	}
	body := line[1 : len(line)-1]

	ids := strings.SplitN(body, ", ", 4)
	if len(ids) != 4 {
		return runner.Failure{}, fmt.Errorf("expected task, group, subject and two quoted fields")
	}
	rest := ids[3]

	first, err := strconv.QuotedPrefix(rest)
	if err != nil {
		return runner.Failure{}, fmt.Errorf("first line: %w", err)
	}
	rest = strings.TrimPrefix(rest[len(first):], ", ")
	msg, err := strconv.QuotedPrefix(rest)
	if err != nil {
		return runner.Failure{}, fmt.Errorf("error text: %w", err)
	}

	f := runner.Failure{Task: ids[0], Group: ids[1], Subject: ids[2]}
	if f.FirstLine, err = strconv.Unquote(first); err != nil {
		return runner.Failure{}, err
	}
	if f.Error, err = strconv.Unquote(msg); err != nil {
		return runner.Failure{}, err
	}
	return f, nil
}
