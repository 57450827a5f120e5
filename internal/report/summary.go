package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/fakeyudi/eyetrial/internal/runner"
)

// SubjectStats counts one subject's rows by outcome and its failures.
type SubjectStats struct {
	Group    string
	Subject  string
	Outcomes map[string]int
	Rows     int
	Failures int
}

// Subjects groups rows and failures per (group, subject), sorted by group then
// subject.
func Subjects(res *runner.Result) []SubjectStats {
	type key struct{ group, subject string }
	idx := map[key]*SubjectStats{}
	get := func(group, subject string) *SubjectStats {
		k := key{group, subject}
		s, ok := idx[k]
		if !ok {
			s = &SubjectStats{Group: group, Subject: subject, Outcomes: map[string]int{}}
			idx[k] = s
		}
		return s
	}
	for _, r := range res.Rows {
		s := get(r.Group, r.Subject)
		s.Rows++
		s.Outcomes[r.Outcome]++
	}
	for _, f := range res.Failures {
		get(f.Group, f.Subject).Failures++
	}

	out := make([]SubjectStats, 0, len(idx))
	for _, s := range idx {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

// Outcomes returns the outcome counts over all rows and the labels in sorted
// order.
func Outcomes(rows []runner.Row) (map[string]int, []string) {
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Outcome]++
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return counts, labels
}

// WriteSummary prints a plain-text overview of res.
func WriteSummary(w io.Writer, res *runner.Result) {
	fmt.Fprintf(w, "Task:      %s\n", res.Task)
	if res.Files > 0 {
		fmt.Fprintf(w, "Files:     %d\n", res.Files)
	}
	fmt.Fprintf(w, "Rows:      %d\n", len(res.Rows))
	fmt.Fprintf(w, "Failures:  %d\n", len(res.Failures))

	counts, labels := Outcomes(res.Rows)
	if len(labels) > 0 {
		fmt.Fprintln(w, "\nOutcomes:")
		for _, l := range labels {
			fmt.Fprintf(w, "  %-8s %d\n", l, counts[l])
		}
	}

	subjects := Subjects(res)
	if len(subjects) > 0 {
		fmt.Fprintln(w, "\nSubjects:")
		for _, s := range subjects {
			fmt.Fprintf(w, "  %s/%s  rows=%d failures=%d\n", s.Group, s.Subject, s.Rows, s.Failures)
		}
	}
}
