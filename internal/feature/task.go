package feature

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// TaskKind identifies an experimental paradigm. The value doubles as the
// name of the task's data directory.
type TaskKind string

const (
	// VisuallyGuided: respond to target onset.
	VisuallyGuided TaskKind = "VGS"
	// MemoryGuided: delayed response, go-signal is fixation offset.
	MemoryGuided TaskKind = "MGS"
	// Gap: fixation disappears before target onset; go-signal is target onset.
	Gap TaskKind = "GAP"
)

// AllTasks lists the supported task kinds in their conventional order.
var AllTasks = []TaskKind{VisuallyGuided, MemoryGuided, Gap}

// ParseTaskKind accepts a task name case-insensitively.
func ParseTaskKind(s string) (TaskKind, error) {
	k := TaskKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllTasks {
		if k == known {
			return k, nil
		}
	}
	return "", goerr.Wrap(ErrUnknownTask, "unsupported task", goerr.V("task", s))
}

func (k TaskKind) String() string { return string(k) }
