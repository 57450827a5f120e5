package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/fakeyudi/eyetrial/internal/gaze"
)

// Config holds the display setup, data locations and runtime settings.
type Config struct {
	ViewingDistanceCM float64  `json:"viewing_distance_cm"`
	XPixels           float64  `json:"x_pixels"`
	YPixels           float64  `json:"y_pixels"`
	PixelsPerCM       float64  `json:"pixels_per_cm"`
	SamplingRate      float64  `json:"sampling_rate"` // Hz
	BaseDir           string   `json:"base_dir"`
	OutputDir         string   `json:"output_dir"`
	Tasks             []string `json:"tasks"`
	Pattern           string   `json:"pattern"`
	Workers           int      `json:"workers"`
	DBPath            string   `json:"db_path"`
	ListenAddr        string   `json:"listen_addr"`
	LogLevel          string   `json:"log_level"`  // "debug" | "info" | "warn" | "error"
	LogFormat         string   `json:"log_format"` // "text" | "json"
}

// Defaults returns the lab's standard display and paths.
func Defaults() Config {
	return Config{
		ViewingDistanceCM: 70,
		XPixels:           1920,
		YPixels:           1080,
		PixelsPerCM:       37.79,
		SamplingRate:      500,
		BaseDir:           ".",
		OutputDir:         ".",
		Tasks:             []string{"VGS", "MGS", "GAP"},
		Pattern:           "*.asc",
		Workers:           1,
		DBPath:            "eyetrial.db",
		ListenAddr:        ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// ScreenWidthCM is the physical screen width derived from resolution and
// pixel density.
func (c Config) ScreenWidthCM() float64 {
	return c.XPixels / c.PixelsPerCM
}

// PPD returns pixels per degree of visual angle for the configured display.
func (c Config) PPD() float64 {
	return math.Pi * c.XPixels / math.Atan(c.ScreenWidthCM()/c.ViewingDistanceCM/2.0) / 360.0
}

// Display returns the unit-conversion parameters used by the analysis core.
func (c Config) Display() gaze.Display {
	return gaze.Display{
		PPD:          c.PPD(),
		XPixels:      c.XPixels,
		YPixels:      c.YPixels,
		SamplingRate: c.SamplingRate,
	}
}

// Validate rejects settings that would make unit conversion meaningless.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"viewing_distance_cm", c.ViewingDistanceCM},
		{"x_pixels", c.XPixels},
		{"y_pixels", c.YPixels},
		{"pixels_per_cm", c.PixelsPerCM},
		{"sampling_rate", c.SamplingRate},
	}
	for _, p := range positive {
		if !(p.value > 0) {
			return fmt.Errorf("%s must be positive, got %v", p.name, p.value)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// GlobalPath returns ~/.config/eyetrial/config.json.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "eyetrial", "config.json"), nil
}

// LoadGlobal reads the global config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// SaveGlobal writes c to the global config file, creating its directory.
func SaveGlobal(c Config) (string, error) {
	path, err := GlobalPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// LoadProject reads .eyetrialconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".eyetrialconfig", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Zero values fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer != nil {
			overlay(&result, layer)
		}
	}
	return result
}

func overlay(dst, src *Config) {
	setFloat := func(d *float64, v float64) {
		if v != 0 {
			*d = v
		}
	}
	setString := func(d *string, v string) {
		if v != "" {
			*d = v
		}
	}

	setFloat(&dst.ViewingDistanceCM, src.ViewingDistanceCM)
	setFloat(&dst.XPixels, src.XPixels)
	setFloat(&dst.YPixels, src.YPixels)
	setFloat(&dst.PixelsPerCM, src.PixelsPerCM)
	setFloat(&dst.SamplingRate, src.SamplingRate)
	setString(&dst.BaseDir, src.BaseDir)
	setString(&dst.OutputDir, src.OutputDir)
	setString(&dst.Pattern, src.Pattern)
	setString(&dst.DBPath, src.DBPath)
	setString(&dst.ListenAddr, src.ListenAddr)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.LogFormat, src.LogFormat)
	if len(src.Tasks) > 0 {
		dst.Tasks = src.Tasks
	}
	if src.Workers != 0 {
		dst.Workers = src.Workers
	}
}

// envPrefix namespaces environment overrides, e.g. EYETRIAL_BASE_DIR.
const envPrefix = "EYETRIAL_"

// ApplyEnv loads an optional .env file from the working directory and then
// overlays EYETRIAL_* variables on cfg. Variables already set in the process
// environment win over the .env file.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var env Config
	floats := map[string]*float64{
		"VIEWING_DISTANCE_CM": &env.ViewingDistanceCM,
		"X_PIXELS":            &env.XPixels,
		"Y_PIXELS":            &env.YPixels,
		"PIXELS_PER_CM":       &env.PixelsPerCM,
		"SAMPLING_RATE":       &env.SamplingRate,
	}
	for key, dst := range floats {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
		*dst = f
	}

	strs := map[string]*string{
		"BASE_DIR":    &env.BaseDir,
		"OUTPUT_DIR":  &env.OutputDir,
		"PATTERN":     &env.Pattern,
		"DB_PATH":     &env.DBPath,
		"LISTEN_ADDR": &env.ListenAddr,
		"LOG_LEVEL":   &env.LogLevel,
		"LOG_FORMAT":  &env.LogFormat,
	}
	for key, dst := range strs {
		*dst = os.Getenv(envPrefix + key)
	}

	if v := os.Getenv(envPrefix + "TASKS"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				env.Tasks = append(env.Tasks, t)
			}
		}
	}
	if v := os.Getenv(envPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sWORKERS: %w", envPrefix, err)
		}
		env.Workers = n
	}

	overlay(cfg, &env)
	return nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
