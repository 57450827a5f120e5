// Package feature computes per-trial behavioral measures from a trial's
// event lines: outcome, response latency, saccade velocity, spatial accuracy
// and delay duration.
package feature

import (
	"math"
	"strconv"
	"strings"

	"github.com/fakeyudi/eyetrial/internal/gaze"
	"github.com/m-mizutani/goerr/v2"
)

const (
	ResponseMarker       = "TRIAL_VAR Response"
	FixationOffMarker    = " FixationOff" // also matches " FixationOff_T"
	TargetOnsetSuffix    = " Target"
	TargetLocationMarker = " targetlocation ["
	DelayMarker          = " memorydelayduration_test "
	messagePrefix        = "MSG"
)

// Outcomes accepted for full feature extraction.
var acceptedOutcomes = map[string]bool{
	"Hit":   true,
	"Miss":  true,
	"Abort": true,
	"a":     true,
}

// Accepted reports whether an outcome label qualifies a trial for extraction.
func Accepted(outcome string) bool {
	return acceptedOutcomes[outcome]
}

// Features holds the measures derived from one accepted trial.
type Features struct {
	Latency  int64   // ticks between go-signal and initial saccade onset
	Velocity float64 // amplitude per second
	Accuracy float64 // degrees between target and saccade endpoint
	Delay    int64
}

// Outcome returns the trimmed label after the response marker.
func Outcome(lines []string) (string, error) {
	for _, line := range lines {
		if !strings.Contains(line, ResponseMarker) {
			continue
		}
		parts := strings.Split(line, ResponseMarker)
		return strings.TrimSpace(parts[1]), nil
	}
	return "", goerr.Wrap(ErrNotFound, "no TRIAL_VAR Response in trial", goerr.V("marker", ResponseMarker))
}

// GoSignal returns the timestamp of the event that cued the response.
func GoSignal(lines []string, kind TaskKind) (int64, error) {
	var match func(string) bool
	switch kind {
	case MemoryGuided:
		match = func(l string) bool { return strings.Contains(l, FixationOffMarker) }
	case VisuallyGuided, Gap:
		match = func(l string) bool { return strings.HasSuffix(l, TargetOnsetSuffix) }
	default:
		return 0, goerr.Wrap(ErrUnknownTask, "no go-signal for task", goerr.V("task", kind))
	}

	for _, line := range lines {
		if match(line) {
			return messageTimestamp(line)
		}
	}
	return 0, goerr.Wrap(ErrNotFound, "no go-signal in trial", goerr.V("task", kind))
}

// messageTimestamp reads the timestamp that follows "MSG" in a message line,
// e.g. "MSG\t2837192 FixationOff".
func messageTimestamp(line string) (int64, error) {
	parts := strings.Split(line, messagePrefix)
	if len(parts) < 2 {
		return 0, goerr.Wrap(ErrParse, "go-signal is not a message line", goerr.V("line", line))
	}
	raw := strings.TrimSpace(strings.Split(parts[1], " ")[0])
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, goerr.Wrap(ErrParse, "invalid go-signal timestamp", goerr.V("line", line), goerr.V("value", raw))
	}
	return ts, nil
}

// Latency is the initial saccade's onset minus the go-signal timestamp.
func Latency(lines []string, kind TaskKind) (int64, error) {
	goSignal, err := GoSignal(lines, kind)
	if err != nil {
		return 0, err
	}
	sac, err := SelectSaccade(lines)
	if err != nil {
		return 0, err
	}
	return sac.Onset - goSignal, nil
}

// Velocity is the initial saccade's amplitude divided by its duration in
// seconds. A zero duration yields an infinite (or NaN) result unguarded.
func Velocity(lines []string) (float64, error) {
	sac, err := SelectSaccade(lines)
	if err != nil {
		return 0, err
	}
	return sac.Amplitude / (float64(sac.Duration) / 1000), nil
}

// Accuracy is the Euclidean distance in degrees between the target location
// and the initial saccade's endpoint. Both points are offset by the full
// screen dimension rather than half of it, unlike gaze.Normalize; the shift
// cancels in the distance.
func Accuracy(lines []string, d gaze.Display) (float64, error) {
	tx, ty, err := TargetLocation(lines)
	if err != nil {
		return 0, err
	}
	sac, err := SelectSaccade(lines)
	if err != nil {
		return 0, err
	}

	targetX := (float64(tx) - d.XPixels) / d.PPD
	targetY := (float64(ty) - d.YPixels) / d.PPD
	endX := (sac.EndX - d.XPixels) / d.PPD
	endY := (sac.EndY - d.YPixels) / d.PPD

	return math.Sqrt(math.Pow(targetX-endX, 2) + math.Pow(targetY-endY, 2)), nil
}

// TargetLocation parses the pixel pair of " targetlocation [x,y]".
func TargetLocation(lines []string) (int64, int64, error) {
	for _, line := range lines {
		if !strings.Contains(line, TargetLocationMarker) {
			continue
		}
		rest := strings.Split(line, TargetLocationMarker)[1]
		pair := strings.Split(rest, ",")
		if len(pair) < 2 {
			return 0, 0, goerr.Wrap(ErrParse, "targetlocation has no coordinate pair", goerr.V("line", line))
		}
		x, err := strconv.ParseInt(strings.TrimSpace(pair[0]), 10, 64)
		if err != nil {
			return 0, 0, goerr.Wrap(ErrParse, "invalid targetlocation x", goerr.V("line", line))
		}
		y, err := strconv.ParseInt(strings.TrimSpace(strings.Split(pair[1], "]")[0]), 10, 64)
		if err != nil {
			return 0, 0, goerr.Wrap(ErrParse, "invalid targetlocation y", goerr.V("line", line))
		}
		return x, y, nil
	}
	return 0, 0, goerr.Wrap(ErrNotFound, "no targetlocation in trial", goerr.V("marker", strings.TrimSpace(TargetLocationMarker)))
}

// Delay returns the memory delay duration, or 0 when the trial has none.
func Delay(lines []string) (int64, error) {
	for _, line := range lines {
		if !strings.Contains(line, DelayMarker) {
			continue
		}
		raw := strings.TrimSpace(strings.Split(line, strings.TrimSpace(DelayMarker))[1])
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, goerr.Wrap(ErrParse, "invalid memorydelayduration_test", goerr.V("line", line), goerr.V("value", raw))
		}
		return v, nil
	}
	return 0, nil
}

// Extract runs latency, velocity, accuracy and delay in that order and stops
// at the first failure.
func Extract(lines []string, kind TaskKind, d gaze.Display) (Features, error) {
	var f Features
	var err error

	if f.Latency, err = Latency(lines, kind); err != nil {
		return Features{}, err
	}
	if f.Velocity, err = Velocity(lines); err != nil {
		return Features{}, err
	}
	if f.Accuracy, err = Accuracy(lines, d); err != nil {
		return Features{}, err
	}
	if f.Delay, err = Delay(lines); err != nil {
		return Features{}, err
	}
	return f, nil
}
