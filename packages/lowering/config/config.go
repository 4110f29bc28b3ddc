package config

import (
	"os"
	"strings"

	"github.com/npillmayer/schuko/tracing"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoweringConfig holds the options of the lowering passes
type LoweringConfig struct {
	// OptimizeBlocks flattens nested blocks after async lowering
	OptimizeBlocks bool `yaml:"optimize_blocks"`
	// PreferSealedDispose calls the Dispose method of a sealed resource type
	// directly instead of through IDisposable
	PreferSealedDispose bool `yaml:"prefer_sealed_dispose"`
	// SpillVariables spills variable reads that precede an await. When
	// false, a variable is only spilled if a later operand assigns it.
	SpillVariables bool `yaml:"spill_variables"`
	// TraceLevel is one of "error", "info" or "debug"
	TraceLevel string `yaml:"trace_level"`
}

// NewLoweringConfig creates a new LoweringConfig with optional parameters
func NewLoweringConfig(opts ...LoweringConfigOption) *LoweringConfig {
	config := &LoweringConfig{
		OptimizeBlocks:      true,
		PreferSealedDispose: true,
		SpillVariables:      true,
		TraceLevel:          "error",
	}

	for _, opt := range opts {
		opt(config)
	}

	return config
}

// LoweringConfigOption is a function that modifies LoweringConfig
type LoweringConfigOption func(*LoweringConfig)

// WithOptimizeBlocks sets whether nested blocks are flattened
func WithOptimizeBlocks(optimize bool) LoweringConfigOption {
	return func(c *LoweringConfig) {
		c.OptimizeBlocks = optimize
	}
}

// WithPreferSealedDispose sets whether sealed resources are disposed directly
func WithPreferSealedDispose(prefer bool) LoweringConfigOption {
	return func(c *LoweringConfig) {
		c.PreferSealedDispose = prefer
	}
}

// WithSpillVariables sets whether variable operands are always spilled
func WithSpillVariables(spill bool) LoweringConfigOption {
	return func(c *LoweringConfig) {
		c.SpillVariables = spill
	}
}

// WithTraceLevel sets the trace level
func WithTraceLevel(level string) LoweringConfigOption {
	return func(c *LoweringConfig) {
		c.TraceLevel = level
	}
}

// Load reads a YAML configuration file. Settings missing from the file keep
// their defaults.
func Load(path string, opts ...LoweringConfigOption) (*LoweringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	config := NewLoweringConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if _, err := ParseTraceLevel(config.TraceLevel); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	for _, opt := range opts {
		opt(config)
	}
	return config, nil
}

// ParseTraceLevel maps a level name to a tracing level
func ParseTraceLevel(s string) (tracing.TraceLevel, error) {
	switch strings.ToLower(s) {
	case "", "error":
		return tracing.LevelError, nil
	case "info":
		return tracing.LevelInfo, nil
	case "debug":
		return tracing.LevelDebug, nil
	}
	return tracing.LevelError, errors.Errorf("unknown trace level %q", s)
}

// ApplyTracing sets the level of the given tracers
func (c *LoweringConfig) ApplyTracing(keys ...string) {
	level, err := ParseTraceLevel(c.TraceLevel)
	if err != nil {
		level = tracing.LevelError
	}
	for _, k := range keys {
		tracing.Select(k).SetTraceLevel(level)
	}
}
