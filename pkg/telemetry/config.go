// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"math"
	"time"
)

// DownsampleMode selects how a render batch is thinned before display
type DownsampleMode string

// Downsample modes
const (
	DownsampleNone   DownsampleMode = "none"
	DownsampleStride DownsampleMode = "stride"
	DownsampleMinMax DownsampleMode = "minmax"
)

// Valid reports whether m is a known mode
func (m DownsampleMode) Valid() bool {
	switch m {
	case DownsampleNone, DownsampleStride, DownsampleMinMax:
		return true
	}
	return false
}

// Config holds the pipeline tuning knobs
type Config struct {
	RenderHz          float64        `yaml:"render_hz"`
	ExpectedHz        float64        `yaml:"expected_hz"`
	BufferSeconds     float64        `yaml:"buffer_seconds"`
	MaxPointsOnChart  int            `yaml:"max_points_on_chart"`
	MaxDrainPerTick   int            `yaml:"max_drain_per_tick"`
	DownsampleMode    DownsampleMode `yaml:"downsample_mode"`
	StrideN           int            `yaml:"stride_n"`
	DropHighWatermark float64        `yaml:"drop_high_watermark"`
	DropLowWatermark  float64        `yaml:"drop_low_watermark"`
}

// DefaultConfig returns the stock pipeline configuration
func DefaultConfig() Config {
	return Config{
		RenderHz:          30,
		ExpectedHz:        500,
		BufferSeconds:     10,
		MaxPointsOnChart:  10000,
		MaxDrainPerTick:   2000,
		DownsampleMode:    DownsampleNone,
		StrideN:           1,
		DropHighWatermark: 0.8,
		DropLowWatermark:  0.5,
	}
}

// Capacity returns the buffer size: expected rate times buffered seconds,
// at least 1
func (c Config) Capacity() int {
	return max(1, int(math.Floor(c.ExpectedHz*c.BufferSeconds)))
}

// RenderInterval returns the render tick period, at least 1 ms
func (c Config) RenderInterval() time.Duration {
	ms := 1
	if c.RenderHz > 0 {
		ms = max(1, int(math.Floor(1000/c.RenderHz)))
	}
	return time.Duration(ms) * time.Millisecond
}

// BufferOptions derives the buffer manager options
func (c Config) BufferOptions() BufferOptions {
	return BufferOptions{
		Capacity:      c.Capacity(),
		HighWatermark: c.DropHighWatermark,
		LowWatermark:  c.DropLowWatermark,
	}
}

// Validate returns the first invalid setting
func (c Config) Validate() error {
	switch {
	case !(c.RenderHz > 0):
		return fmt.Errorf("render_hz must be > 0, got %v", c.RenderHz)
	case !(c.ExpectedHz > 0):
		return fmt.Errorf("expected_hz must be > 0, got %v", c.ExpectedHz)
	case !(c.BufferSeconds > 0):
		return fmt.Errorf("buffer_seconds must be > 0, got %v", c.BufferSeconds)
	case c.MaxDrainPerTick < 1:
		return fmt.Errorf("max_drain_per_tick must be >= 1, got %d", c.MaxDrainPerTick)
	case c.MaxPointsOnChart < 1:
		return fmt.Errorf("max_points_on_chart must be >= 1, got %d", c.MaxPointsOnChart)
	case !c.DownsampleMode.Valid():
		return fmt.Errorf("unknown downsample_mode %q", c.DownsampleMode)
	case c.StrideN < 1:
		return fmt.Errorf("stride_n must be >= 1, got %d", c.StrideN)
	}
	return c.BufferOptions().Validate()
}
