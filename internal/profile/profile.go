// Package profile runs the interactive wizard that records the lab's display
// setup (viewing distance, resolution, pixel density, sampling rate) and data
// locations in the global config.
package profile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fakeyudi/eyetrial/internal/config"
)

// RunSetup prompts for each setting on out, reading answers from in. Empty
// answers keep the value from existing (edit mode).
func RunSetup(in io.Reader, out io.Writer, existing config.Config) (config.Config, error) {
	r := bufio.NewReader(in)

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	// askFloat re-prompts until the answer is a positive number.
	askFloat := func(prompt string, defaultVal float64) (float64, error) {
		for {
			ans, err := ask(prompt, strconv.FormatFloat(defaultVal, 'f', -1, 64))
			if err != nil {
				return 0, err
			}
			v, err := strconv.ParseFloat(ans, 64)
			if err == nil && v > 0 {
				return v, nil
			}
			fmt.Fprintf(out, "  %q is not a positive number\n", ans)
		}
	}

	c := existing

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │   eyetrial · display setup      │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error
	if c.ViewingDistanceCM, err = askFloat("  Viewing distance (cm)", c.ViewingDistanceCM); err != nil {
		return config.Config{}, err
	}
	if c.XPixels, err = askFloat("  Screen width (pixels)", c.XPixels); err != nil {
		return config.Config{}, err
	}
	if c.YPixels, err = askFloat("  Screen height (pixels)", c.YPixels); err != nil {
		return config.Config{}, err
	}
	if c.PixelsPerCM, err = askFloat("  Pixels per cm", c.PixelsPerCM); err != nil {
		return config.Config{}, err
	}
	if c.SamplingRate, err = askFloat("  Sampling rate (Hz)", c.SamplingRate); err != nil {
		return config.Config{}, err
	}

	if c.BaseDir, err = ask("  Recordings directory", c.BaseDir); err != nil {
		return config.Config{}, err
	}
	if c.OutputDir, err = ask("  Output directory", c.OutputDir); err != nil {
		return config.Config{}, err
	}

	tasks, err := ask("  Tasks (comma separated)", strings.Join(c.Tasks, ","))
	if err != nil {
		return config.Config{}, err
	}
	c.Tasks = nil
	for _, t := range strings.Split(tasks, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			c.Tasks = append(c.Tasks, t)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  → %.2f pixels per degree\n", c.PPD())
	fmt.Fprintln(out)
	return c, nil
}
