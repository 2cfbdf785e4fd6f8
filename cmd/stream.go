// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/foclink/pkg/config"
)

var (
	streamMotor     uint8
	streamRegisters []string
	streamHz        float64
)

// addStreamFlags adds the telemetry stream selection flags to cmd
func addStreamFlags(cmd *cobra.Command) {
	cmd.Flags().Uint8VarP(&streamMotor, "motor", "m", 0, "Motor index to stream")
	cmd.Flags().StringSliceVarP(&streamRegisters, "registers", "r", nil, "Registers to stream (names or prefixes)")
	cmd.Flags().Float64Var(&streamHz, "hz", 0, "Telemetry frequency in Hz")
}

// loadStreamConfig is loadConfig plus the stream flags
func loadStreamConfig(cmd *cobra.Command) (config.File, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.File{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("motor") {
		cfg.Monitor.Motor = streamMotor
	}
	if flags.Changed("registers") {
		cfg.Monitor.Registers = streamRegisters
	}
	if flags.Changed("hz") {
		cfg.Monitor.FrequencyHz = streamHz
	}
	if err := config.Validate(&cfg); err != nil {
		return config.File{}, err
	}
	return cfg, nil
}
