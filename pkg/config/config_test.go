// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/foclink/pkg/foclink"
	"github.com/Thermoquad/foclink/pkg/telemetry"
)

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error: %v", err)
	}
	if cfg.Link.Baud != 115200 || cfg.Telemetry != telemetry.DefaultConfig() {
		t.Errorf("empty file should yield defaults, got %+v", cfg)
	}
}

func TestParse_Overrides(t *testing.T) {
	data := []byte(`
link:
  port: /dev/ttyUSB0
  baud: 921600
  legacy: true
telemetry:
  render_hz: 60
  downsample_mode: minmax
  stride_n: 4
monitor:
  motor: 1
  registers: [POSITION, sensor]
  frequency_hz: 250
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Link.Port != "/dev/ttyUSB0" || cfg.Link.Baud != 921600 || !cfg.Link.Legacy {
		t.Errorf("link = %+v", cfg.Link)
	}
	if cfg.Link.ReadTimeout().Milliseconds() != 1000 {
		t.Errorf("read timeout default lost: %v", cfg.Link.ReadTimeout())
	}
	if cfg.Telemetry.RenderHz != 60 || cfg.Telemetry.DownsampleMode != telemetry.DownsampleMinMax {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Telemetry.ExpectedHz != 500 {
		t.Errorf("unset expected_hz = %v, want default 500", cfg.Telemetry.ExpectedHz)
	}

	ids, err := cfg.Monitor.ResolveRegisters(nil)
	if err != nil {
		t.Fatalf("ResolveRegisters error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0x10 || ids[1] != 0x12 {
		t.Errorf("registers = %v", ids)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("link:\n  speed: 9600\n"))
	if err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Link.Port = "/dev/ttyACM0"
	cfg.Link.URL = "ws://host/ws"
	cfg.Telemetry.RenderHz = 0
	cfg.Telemetry.DropLowWatermark = 0.9
	cfg.Telemetry.DownsampleMode = "cubic"
	cfg.Monitor.Registers = []string{"NOPE"}

	err := Validate(&cfg)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate = %v, want *ValidationError", err)
	}
	if len(verr.Problems) != 5 {
		t.Errorf("problems = %d, want 5:\n%s", len(verr.Problems), strings.Join(verr.Problems, "\n"))
	}
	if !strings.Contains(err.Error(), "NOPE") {
		t.Errorf("error should name the register: %v", err)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Default()
	if err := Validate(&cfg); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foclink.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  frequency_hz: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Load = %v, want validation error", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestResolveRegisters_Unknown(t *testing.T) {
	m := Monitor{Registers: []string{"VELOCITY", "NOPE"}}
	if _, err := m.ResolveRegisters(nil); !errors.Is(err, foclink.ErrUnknownRegister) {
		t.Errorf("ResolveRegisters = %v, want ErrUnknownRegister", err)
	}
}
