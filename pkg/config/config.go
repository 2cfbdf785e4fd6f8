// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the optional YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/foclink/pkg/telemetry"
)

// Link selects and tunes the transport
type Link struct {
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	NoSSLVerify   bool   `yaml:"no_ssl_verify"`
	Legacy        bool   `yaml:"legacy"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
}

// ReadTimeout returns the register read timeout
func (l Link) ReadTimeout() time.Duration {
	return time.Duration(l.ReadTimeoutMS) * time.Millisecond
}

// Monitor is the telemetry stream the monitor starts with
type Monitor struct {
	Motor       uint8    `yaml:"motor"`
	Registers   []string `yaml:"registers"`
	FrequencyHz float64  `yaml:"frequency_hz"`
}

// File is the whole configuration file
type File struct {
	Link      Link             `yaml:"link"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Monitor   Monitor          `yaml:"monitor"`
}

// Default returns the configuration used when no file is given
func Default() File {
	return File{
		Link: Link{
			Baud:          115200,
			ReadTimeoutMS: 1000,
		},
		Telemetry: telemetry.DefaultConfig(),
		Monitor: Monitor{
			Motor:       0,
			Registers:   []string{"VELOCITY", "TARGET"},
			FrequencyHz: 100,
		},
	}
}

// Load reads and validates the file at path. Keys missing from the file
// keep their defaults.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return File{}, err
	}
	return cfg, nil
}
