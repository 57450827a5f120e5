// Package gaze holds gaze sample types and the conversion from device units
// (ticks, screen pixels) to trial-relative seconds and degrees of visual angle.
package gaze

// RawSample is one gaze sample as recorded by the tracker.
type RawSample struct {
	T int64   // device timestamp ticks
	X float64 // screen pixels
	Y float64 // screen pixels
}

// Sample is a normalized gaze sample.
type Sample struct {
	T float64 `json:"t"` // seconds since the trial's first sample
	X float64 `json:"x"` // degrees from screen center
	Y float64 `json:"y"` // degrees from screen center
}

// Display describes the recording setup needed for unit conversion.
type Display struct {
	PPD          float64 // pixels per degree of visual angle
	XPixels      float64
	YPixels      float64
	SamplingRate float64 // Hz
}

// Normalize converts raw samples to trial-relative seconds and
// screen-center-relative degrees. The first returned sample always has T == 0.
// An empty input yields an empty, non-nil slice.
func Normalize(raw []RawSample, d Display) []Sample {
	out := make([]Sample, len(raw))
	if len(raw) == 0 {
		return out
	}
	t0 := raw[0].T
	cx, cy := d.XPixels/2, d.YPixels/2
	for i, s := range raw {
		out[i] = Sample{
			T: float64(s.T-t0) / d.SamplingRate,
			X: (s.X - cx) / d.PPD,
			Y: (s.Y - cy) / d.PPD,
		}
	}
	return out
}

// Duration returns the time span covered by normalized samples in seconds.
func Duration(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[len(samples)-1].T - samples[0].T
}
