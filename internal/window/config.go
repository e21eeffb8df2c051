package window

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid window config")

// Config holds the rotation thresholds and sample scaling.
type Config struct {
	// Size is the cycle length in samples.
	Size int
	// ArmAt arms rotation once dataCount%Size exceeds it.
	ArmAt int
	// RotateBelow rotates an armed window once dataCount%Size drops below it.
	RotateBelow int
	// SampleRate converts the sequence field s into the x-axis coordinate.
	SampleRate float64
	// GyroScale divides every gyro value before it is stored.
	GyroScale float64
}

// DefaultConfig returns the thresholds used by the reference device: a 300
// sample cycle (30 s at 10 Hz) armed at 250 and rotated below 50.
func DefaultConfig() Config {
	return Config{
		Size:        300,
		ArmAt:       250,
		RotateBelow: 50,
		SampleRate:  0.1,
		GyroScale:   400,
	}
}

// Validate reports whether the thresholds describe a reachable cycle.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, c.Size)
	}
	// dataCount%Size never exceeds Size-1, so ArmAt must leave room above it.
	if c.RotateBelow <= 0 || c.RotateBelow > c.ArmAt || c.ArmAt >= c.Size-1 {
		return fmt.Errorf("%w: need 0 < rotate (%d) <= arm (%d) < size-1 (%d)",
			ErrInvalidConfig, c.RotateBelow, c.ArmAt, c.Size-1)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidConfig, c.SampleRate)
	}
	if c.GyroScale == 0 {
		return fmt.Errorf("%w: gyro scale must be non-zero", ErrInvalidConfig)
	}
	return nil
}
