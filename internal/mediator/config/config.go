package config

import (
	"errors"
	"fmt"
)

// Config groups the mediator settings. Zero values fall back to library
// defaults via WithDefaults.
type Config struct {
	// MetricsEnabled switches the Prometheus collectors on. When false the
	// metrics middleware and stream telemetry become no-ops.
	MetricsEnabled bool

	// MetricsNamespace is the Prometheus namespace for all collectors.
	// Defaults to "relay".
	MetricsNamespace string

	// Stream rating thresholds. Each value is a fraction of the mean
	// inter-item gap; a stream's jitter is compared against them to derive
	// the rating. Must satisfy 0 < Excellent < Good < Fair <= 1.
	//
	// Defaults: Excellent 0.10, Good 0.25, Fair 0.50.
	StreamExcellentRatio float64
	StreamGoodRatio      float64
	StreamFairRatio      float64
}

// WithDefaults returns a copy with zero values replaced by library defaults.
func (c Config) WithDefaults() Config {
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "relay"
	}
	if c.StreamExcellentRatio == 0 {
		c.StreamExcellentRatio = 0.10
	}
	if c.StreamGoodRatio == 0 {
		c.StreamGoodRatio = 0.25
	}
	if c.StreamFairRatio == 0 {
		c.StreamFairRatio = 0.50
	}
	return c
}

// Validate checks the configuration. Returns an error describing every
// invalid field.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateRatios()...)

	return errors.Join(errs...)
}

func (c *Config) validateRatios() []error {
	var errs []error
	ratios := []struct {
		name  string
		value float64
	}{
		{"excellent", c.StreamExcellentRatio},
		{"good", c.StreamGoodRatio},
		{"fair", c.StreamFairRatio},
	}
	for _, r := range ratios {
		if r.value < 0 || r.value > 1 {
			errs = append(errs, fmt.Errorf("stream rating: %s ratio %v out of range [0, 1]", r.name, r.value))
		}
	}
	if c.StreamExcellentRatio > 0 && c.StreamGoodRatio > 0 && c.StreamExcellentRatio > c.StreamGoodRatio {
		errs = append(errs, errors.New("stream rating: excellent ratio cannot exceed good ratio"))
	}
	if c.StreamGoodRatio > 0 && c.StreamFairRatio > 0 && c.StreamGoodRatio > c.StreamFairRatio {
		errs = append(errs, errors.New("stream rating: good ratio cannot exceed fair ratio"))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
