package config

import (
	"github.com/kbukum/wirekit/errors"
	"github.com/kbukum/wirekit/logger"
	"github.com/kbukum/wirekit/validation"
)

// DefaultMaxResolveDepth bounds dependency chains when no depth is configured.
const DefaultMaxResolveDepth = 100

// Config is the explicit engine configuration threaded through every scope.
type Config struct {
	// MaxResolveDepth is the deepest dependency chain a plan may contain.
	MaxResolveDepth int `yaml:"max_resolve_depth" mapstructure:"max_resolve_depth" validate:"min=1,max=100000"`
	// StrictAmbiguity makes equal-priority unkeyed exports an error.
	StrictAmbiguity bool `yaml:"strict_ambiguity" mapstructure:"strict_ambiguity"`
	// AutoRegisterConcrete lets unregistered struct types be built on demand.
	AutoRegisterConcrete bool `yaml:"auto_register_concrete" mapstructure:"auto_register_concrete"`
	// TrackDisposableTransients controls whether transient io.Closers are owned by their scope.
	TrackDisposableTransients bool `yaml:"track_disposable_transients" mapstructure:"track_disposable_transients"`

	Logging       logger.Config       `yaml:"logging" mapstructure:"logging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// ObservabilityConfig toggles the OpenTelemetry instruments used by the engine.
type ObservabilityConfig struct {
	Tracing     bool   `yaml:"tracing" mapstructure:"tracing"`
	Metrics     bool   `yaml:"metrics" mapstructure:"metrics"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name" validate:"required_if=Tracing true"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{TrackDisposableTransients: true}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxResolveDepth == 0 {
		c.MaxResolveDepth = DefaultMaxResolveDepth
	}
	c.Logging.ApplyDefaults()
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "wirekit"
	}
}

// Validate checks the configuration, returning an INVALID_CONFIG error.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.InvalidConfig(err.Error()).WithCause(err)
	}
	return nil
}
