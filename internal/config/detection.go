// Package config holds the detection tunables and the daemon configuration file.
package config

import (
	"fmt"
	"time"
)

// Tunable ranges for the detection settings.
const (
	MinSequenceLength   = 20
	MaxSequenceLength   = 200
	MinSamplingPeriodMs = 5
	MaxSamplingPeriodMs = 200
	MinFallThreshold    = 0.1
	MaxFallThreshold    = 1.0
)

// Default detection settings.
const (
	DefaultSequenceLength   = 40
	DefaultSamplingPeriodMs = 31
	DefaultFallThreshold    = 0.5
)

// Detection holds the three runtime tunables of the detector. A Detection is
// replaced as a whole; individual fields are never updated in place.
type Detection struct {
	SequenceLength   int     `json:"sequence_length" toml:"sequence_length" yaml:"sequence_length"`
	SamplingPeriodMs int     `json:"sampling_period_ms" toml:"sampling_period_ms" yaml:"sampling_period_ms"`
	FallThreshold    float32 `json:"fall_threshold" toml:"fall_threshold" yaml:"fall_threshold"`
}

// DefaultDetection returns the settings used when nothing has been persisted.
func DefaultDetection() Detection {
	return Detection{
		SequenceLength:   DefaultSequenceLength,
		SamplingPeriodMs: DefaultSamplingPeriodMs,
		FallThreshold:    DefaultFallThreshold,
	}
}

// SamplingPeriod returns the sampling period as a duration.
func (d Detection) SamplingPeriod() time.Duration {
	return time.Duration(d.SamplingPeriodMs) * time.Millisecond
}

// Validate checks that every tunable is within its allowed range.
func (d Detection) Validate() error {
	if d.SequenceLength < MinSequenceLength || d.SequenceLength > MaxSequenceLength {
		return fmt.Errorf("sequence_length must be between %d and %d, got %d",
			MinSequenceLength, MaxSequenceLength, d.SequenceLength)
	}
	if d.SamplingPeriodMs < MinSamplingPeriodMs || d.SamplingPeriodMs > MaxSamplingPeriodMs {
		return fmt.Errorf("sampling_period_ms must be between %d and %d, got %d",
			MinSamplingPeriodMs, MaxSamplingPeriodMs, d.SamplingPeriodMs)
	}
	if d.FallThreshold < MinFallThreshold || d.FallThreshold > MaxFallThreshold {
		return fmt.Errorf("fall_threshold must be between %.1f and %.1f, got %g",
			MinFallThreshold, MaxFallThreshold, d.FallThreshold)
	}
	return nil
}

// Clamp coerces each tunable into its allowed range. Stored settings go
// through Clamp so a bad value in the settings table cannot stop the detector.
func (d Detection) Clamp() Detection {
	d.SequenceLength = clampInt(d.SequenceLength, MinSequenceLength, MaxSequenceLength)
	d.SamplingPeriodMs = clampInt(d.SamplingPeriodMs, MinSamplingPeriodMs, MaxSamplingPeriodMs)
	if d.FallThreshold < MinFallThreshold {
		d.FallThreshold = MinFallThreshold
	}
	if d.FallThreshold > MaxFallThreshold {
		d.FallThreshold = MaxFallThreshold
	}
	return d
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
