// Package config manages the YAML configuration that drives a
// ClassInitCounter run: which class hierarchy to track, which methods are
// safe escapes, and the knobs controlling logging, worker count and the
// fixpoint safety cap.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultWorklistSafetyCap bounds the number of times a single block may be
// re-processed before the CFG driver gives up and logs a diagnostic (see
// spec.md section 7, "Malformed CFG").
const DefaultWorklistSafetyCap = 10000

// DefaultNumWorkers is used when NumWorkers is left at zero.
const DefaultNumWorkers = 4

// Config is the top-level configuration for a ClassInitCounter run.
type Config struct {
	// CommonParent is the fully-qualified name of the class whose
	// descendants are tracked.
	CommonParent string `yaml:"common-parent"`

	// RestrictToMethod, if non-empty, limits analysis to methods with this
	// exact name.
	RestrictToMethod string `yaml:"restrict-to-method"`

	// SafeEscapes lists method references that do not count as leaking a
	// tracked value passed to them.
	SafeEscapes []MethodMatcher `yaml:"safe-escapes"`

	// NumWorkers is the size of the work-queue thread pool. Zero means
	// DefaultNumWorkers.
	NumWorkers int `yaml:"num-workers"`

	// WorklistSafetyCap bounds per-block reprocessing in the CFG driver.
	// Zero means DefaultWorklistSafetyCap.
	WorklistSafetyCap int `yaml:"worklist-safety-cap"`

	// LogLevel controls verbosity; see LogLevel constants.
	LogLevel int `yaml:"log-level"`
}

// NewDefault returns a Config with every knob at its default value.
func NewDefault() *Config {
	return &Config{
		NumWorkers:        DefaultNumWorkers,
		WorklistSafetyCap: DefaultWorklistSafetyCap,
		LogLevel:          int(InfoLevel),
	}
}

// Load reads and validates a YAML configuration file.
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", filename, err)
	}
	if cfg.CommonParent == "" {
		return nil, fmt.Errorf("config %s: common-parent is required", filename)
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultNumWorkers
	}
	if cfg.WorklistSafetyCap <= 0 {
		cfg.WorklistSafetyCap = DefaultWorklistSafetyCap
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}
	return cfg, nil
}

// Logger builds a LogGroup at the configured level.
func (c *Config) Logger() *LogGroup {
	return NewLogGroup(LogLevel(c.LogLevel))
}

// SafeEscapeSet compiles the configured safe-escape matchers.
func (c *Config) SafeEscapeSet() *SafeEscapeSet {
	return NewSafeEscapeSet(c.SafeEscapes)
}
