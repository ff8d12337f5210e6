package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds segmentation and runtime settings.
type Config struct {
	Bins           int                 `yaml:"bins"`
	ColorSpace     string              `yaml:"color_space"`
	Preprocess     PreprocessSettings  `yaml:"preprocess"`
	Foreground     ForegroundSettings  `yaml:"foreground"`
	Background     BackgroundSettings  `yaml:"background"`
	Regularization string              `yaml:"regularization"`
	Decision       DecisionSettings    `yaml:"decision"`
	Performance    PerformanceSettings `yaml:"performance"`
	Log            LogSettings         `yaml:"log"`
}

type PreprocessSettings struct {
	// Smoothing is the Gaussian blur sigma applied before binning; 0 disables it.
	Smoothing float64 `yaml:"smoothing"`
}

type ForegroundSettings struct {
	// Kernel is "none" or "epanechnikov".
	Kernel string `yaml:"kernel"`
}

type BackgroundSettings struct {
	// Margin expands the object region by this fraction of its size on
	// every side to form the outer rectangle of the annulus.
	Margin float64 `yaml:"margin"`
}

type DecisionSettings struct {
	// Rule is "ratio" or "otsu".
	Rule      string  `yaml:"rule"`
	Threshold float64 `yaml:"threshold"`
}

type PerformanceSettings struct {
	// MaxWorkers of 0 means runtime.NumCPU().
	MaxWorkers int `yaml:"max_workers"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bins:           16,
		ColorSpace:     "bgr",
		Foreground:     ForegroundSettings{Kernel: "epanechnikov"},
		Background:     BackgroundSettings{Margin: 0.5},
		Regularization: "gaussian",
		Decision:       DecisionSettings{Rule: "ratio", Threshold: 1.0},
		Performance:    PerformanceSettings{MaxWorkers: 0},
		Log:            LogSettings{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.ColorSpace = strings.ToLower(strings.TrimSpace(c.ColorSpace))
	c.Foreground.Kernel = strings.ToLower(strings.TrimSpace(c.Foreground.Kernel))
	c.Regularization = strings.ToLower(strings.TrimSpace(c.Regularization))
	c.Decision.Rule = strings.ToLower(strings.TrimSpace(c.Decision.Rule))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate checks every setting against its allowed range.
func (c *Config) Validate() error {
	if c.Bins < 2 || c.Bins > 64 {
		return NewValidationError("bins", c.Bins, "must be between 2 and 64")
	}

	if !oneOf(c.ColorSpace, "bgr", "hsv", "lab", "ycrcb", "gray") {
		return NewValidationError("color_space", c.ColorSpace, "must be bgr, hsv, lab, ycrcb or gray")
	}

	if c.Preprocess.Smoothing < 0 || c.Preprocess.Smoothing > 10 {
		return NewValidationError("preprocess.smoothing", c.Preprocess.Smoothing, "must be in [0, 10]")
	}

	if !oneOf(c.Foreground.Kernel, "none", "epanechnikov") {
		return NewValidationError("foreground.kernel", c.Foreground.Kernel, "must be none or epanechnikov")
	}

	if c.Background.Margin <= 0 || c.Background.Margin > 4 {
		return NewValidationError("background.margin", c.Background.Margin, "must be in (0, 4]")
	}

	if !oneOf(c.Regularization, "none", "gaussian", "explicit") {
		return NewValidationError("regularization", c.Regularization, "must be none, gaussian or explicit")
	}

	if !oneOf(c.Decision.Rule, "ratio", "otsu") {
		return NewValidationError("decision.rule", c.Decision.Rule, "must be ratio or otsu")
	}

	if c.Decision.Threshold <= 0 {
		return NewValidationError("decision.threshold", c.Decision.Threshold, "must be positive")
	}

	if c.Performance.MaxWorkers < 0 {
		return NewValidationError("performance.max_workers", c.Performance.MaxWorkers, "must not be negative")
	}

	if !oneOf(c.Log.Format, "console", "json") {
		return NewValidationError("log.format", c.Log.Format, "must be console or json")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		return NewValidationError("log.level", c.Log.Level, "must be trace, debug, info, warn, error, fatal, panic or disabled")
	}

	return nil
}

// Workers resolves MaxWorkers to a concrete goroutine count.
func (c *Config) Workers() int {
	if c.Performance.MaxWorkers > 0 {
		return c.Performance.MaxWorkers
	}
	return runtime.NumCPU()
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// ValidationError represents a parameter validation error
type ValidationError struct {
	Parameter string
	Value     interface{}
	Message   string
}

func NewValidationError(parameter string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Value:     value,
		Message:   message,
	}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for parameter '%s' with value '%v': %s",
		ve.Parameter, ve.Value, ve.Message)
}
