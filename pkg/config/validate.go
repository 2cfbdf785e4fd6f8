// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// ValidationError lists every problem found in a configuration
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks cfg without modifying it
func Validate(cfg *File) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	// ------------------------------------------------------------
	// LINK
	// ------------------------------------------------------------

	if cfg.Link.Port != "" && cfg.Link.URL != "" {
		addf("link: port and url are mutually exclusive")
	}
	if cfg.Link.Baud <= 0 {
		addf("link.baud must be > 0, got %d", cfg.Link.Baud)
	}
	if cfg.Link.ReadTimeoutMS <= 0 {
		addf("link.read_timeout_ms must be > 0, got %d", cfg.Link.ReadTimeoutMS)
	}

	// ------------------------------------------------------------
	// TELEMETRY
	// ------------------------------------------------------------

	t := cfg.Telemetry
	if !(t.RenderHz > 0) {
		addf("telemetry.render_hz must be > 0, got %v", t.RenderHz)
	}
	if !(t.ExpectedHz > 0) {
		addf("telemetry.expected_hz must be > 0, got %v", t.ExpectedHz)
	}
	if !(t.BufferSeconds > 0) {
		addf("telemetry.buffer_seconds must be > 0, got %v", t.BufferSeconds)
	}
	if t.MaxDrainPerTick < 1 {
		addf("telemetry.max_drain_per_tick must be >= 1, got %d", t.MaxDrainPerTick)
	}
	if t.MaxPointsOnChart < 1 {
		addf("telemetry.max_points_on_chart must be >= 1, got %d", t.MaxPointsOnChart)
	}
	if !t.DownsampleMode.Valid() {
		addf("telemetry.downsample_mode %q is not one of none, stride, minmax", t.DownsampleMode)
	}
	if t.StrideN < 1 {
		addf("telemetry.stride_n must be >= 1, got %d", t.StrideN)
	}
	if !(t.DropLowWatermark > 0 && t.DropLowWatermark < t.DropHighWatermark && t.DropHighWatermark <= 1) {
		addf("telemetry watermarks need 0 < drop_low_watermark < drop_high_watermark <= 1, got %v / %v",
			t.DropLowWatermark, t.DropHighWatermark)
	}

	// ------------------------------------------------------------
	// MONITOR
	// ------------------------------------------------------------

	if !(cfg.Monitor.FrequencyHz > 0) {
		addf("monitor.frequency_hz must be > 0, got %v", cfg.Monitor.FrequencyHz)
	}
	if len(cfg.Monitor.Registers) == 0 {
		addf("monitor.registers must name at least one register")
	}
	for _, name := range cfg.Monitor.Registers {
		if _, ok := foclink.DefaultCatalog.Resolve(name); !ok {
			addf("monitor.registers: unknown register %q", name)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ResolveRegisters maps the monitor register names to ids
func (m Monitor) ResolveRegisters(catalog *foclink.Catalog) ([]uint8, error) {
	if catalog == nil {
		catalog = foclink.DefaultCatalog
	}
	ids := make([]uint8, 0, len(m.Registers))
	for _, name := range m.Registers {
		id, ok := catalog.Resolve(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", foclink.ErrUnknownRegister, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
