// Package trial splits an eye-tracker session log into trials.
package trial

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/fakeyudi/eyetrial/internal/gaze"
	"github.com/m-mizutani/goerr/v2"
)

const (
	StartMarker = "TRIALID"
	EndMarker   = "TRIAL_RESULT"
)

// maxLineSize bounds a single log line; EyeLink message lines are short but
// some recorders dump calibration blobs on one line.
const maxLineSize = 1 << 20

// Trial is one finalized trial: its event lines and normalized gaze samples.
type Trial struct {
	Lines   []string      `json:"lines"`
	Samples []gaze.Sample `json:"samples"`
}

// FirstLine returns the trial's first event line, or "" if it has none.
func (t Trial) FirstLine() string {
	if len(t.Lines) == 0 {
		return ""
	}
	return t.Lines[0]
}

// State is the segmenter's position relative to trial markers.
type State int

const (
	Idle State = iota
	InTrial
)

func (s State) String() string {
	if s == InTrial {
		return "in-trial"
	}
	return "idle"
}

// Segmenter is a line-at-a-time trial state machine. A start marker seen
// while a trial is open never opens a nested trial; it is kept as an event
// line of the open trial.
type Segmenter struct {
	display gaze.Display
	state   State
	lines   []string
	raw     []gaze.RawSample
	trials  []Trial
}

// NewSegmenter returns a Segmenter in the Idle state.
func NewSegmenter(d gaze.Display) *Segmenter {
	return &Segmenter{display: d}
}

// State reports the current state.
func (s *Segmenter) State() State { return s.state }

// Trials returns the trials finalized so far. An open trial is not included.
func (s *Segmenter) Trials() []Trial { return s.trials }

// Feed consumes one log line without its terminator.
func (s *Segmenter) Feed(line string) {
	switch s.state {
	case Idle:
		if strings.Contains(line, StartMarker) {
			s.begin()
		}
		// everything else outside a trial is dropped
	case InTrial:
		if strings.Contains(line, EndMarker) {
			s.finish()
			return
		}
		s.accumulate(line)
	}
}

func (s *Segmenter) begin() {
	s.state = InTrial
	s.lines = []string{}
	s.raw = nil
}

func (s *Segmenter) finish() {
	s.trials = append(s.trials, Trial{
		Lines:   s.lines,
		Samples: gaze.Normalize(s.raw, s.display),
	})
	s.state = Idle
	s.lines = nil
	s.raw = nil
}

func (s *Segmenter) accumulate(line string) {
	fields := strings.Split(line, "\t")
	if !isNumeric(fields[0]) {
		s.lines = append(s.lines, line)
		return
	}
	if sample, ok := parseSample(fields); ok {
		s.raw = append(s.raw, sample)
	}
	// malformed sample lines are dropped on purpose
}

// parseSample reads timestamp, x and y from the first three fields.
// Missing-data samples ("." coordinates) fail to parse and are rejected.
func parseSample(fields []string) (gaze.RawSample, bool) {
	if len(fields) < 3 {
		return gaze.RawSample{}, false
	}
	t, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return gaze.RawSample{}, false
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return gaze.RawSample{}, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return gaze.RawSample{}, false
	}
	return gaze.RawSample{T: t, X: x, Y: y}, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Segment reads a whole session log and returns its finalized trials in
// order. Only reader errors are returned; malformed content never is.
func Segment(r io.Reader, d gaze.Display) ([]Trial, error) {
	seg := NewSegmenter(d)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		seg.Feed(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read session log")
	}
	return seg.Trials(), nil
}
