package feature

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// SaccadeMarker identifies end-of-saccade event lines.
const SaccadeMarker = "ESACC"

// Saccade is a parsed end-of-saccade event line. Fields are tab-delimited:
// [1] onset, [2] duration in ms, [5]/[6] endpoint pixels, second to last
// amplitude.
type Saccade struct {
	Line      string
	Onset     int64
	Duration  int64
	EndX      float64
	EndY      float64
	Amplitude float64
}

// InitialSaccade returns the saccade line with the largest amplitude. Among
// equal amplitudes the earliest line wins. Largest amplitude stands in for
// "behaviorally relevant"; it is a heuristic, not a guarantee.
func InitialSaccade(lines []string) (string, error) {
	best := -1
	var bestAmp float64
	for i, line := range lines {
		if !strings.Contains(line, SaccadeMarker) {
			continue
		}
		amp, err := saccadeAmplitude(line)
		if err != nil {
			return "", err
		}
		if best < 0 || amp > bestAmp {
			best, bestAmp = i, amp
		}
	}
	if best < 0 {
		return "", goerr.Wrap(ErrNotFound, "no saccade in trial", goerr.V("marker", SaccadeMarker))
	}
	return lines[best], nil
}

// SelectSaccade selects the initial saccade and parses all of its fields.
func SelectSaccade(lines []string) (*Saccade, error) {
	line, err := InitialSaccade(lines)
	if err != nil {
		return nil, err
	}
	return ParseSaccade(line)
}

// ParseSaccade parses onset, duration, endpoint and amplitude of one line.
func ParseSaccade(line string) (*Saccade, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 7 {
		return nil, goerr.Wrap(ErrParse, "saccade line has too few fields",
			goerr.V("fields", len(fields)), goerr.V("line", line))
	}

	onset, err := parseIntField(fields, 1, line)
	if err != nil {
		return nil, err
	}
	duration, err := parseIntField(fields, 2, line)
	if err != nil {
		return nil, err
	}
	endX, err := parseFloatField(fields, 5, line)
	if err != nil {
		return nil, err
	}
	endY, err := parseFloatField(fields, 6, line)
	if err != nil {
		return nil, err
	}
	amp, err := parseFloatField(fields, len(fields)-2, line)
	if err != nil {
		return nil, err
	}

	return &Saccade{
		Line:      line,
		Onset:     onset,
		Duration:  duration,
		EndX:      endX,
		EndY:      endY,
		Amplitude: amp,
	}, nil
}

func saccadeAmplitude(line string) (float64, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return 0, goerr.Wrap(ErrParse, "saccade line has no amplitude field", goerr.V("line", line))
	}
	return parseFloatField(fields, len(fields)-2, line)
}

func parseIntField(fields []string, idx int, line string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(fields[idx]), 10, 64)
	if err != nil {
		return 0, goerr.Wrap(ErrParse, "invalid integer field",
			goerr.V("index", idx), goerr.V("line", line), goerr.V("cause", err.Error()))
	}
	return v, nil
}

func parseFloatField(fields []string, idx int, line string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
	if err != nil {
		return 0, goerr.Wrap(ErrParse, "invalid numeric field",
			goerr.V("index", idx), goerr.V("line", line), goerr.V("cause", err.Error()))
	}
	return v, nil
}
