// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/foclink/pkg/config"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Protocol flags
	legacyFraming bool

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "foclink",
	Short: "FOC motor controller link tool",
	Long: `foclink - A CLI tool for talking to FOC motor controllers over a serial link.

Reads and writes controller registers, configures streaming telemetry and
monitors it live, and records telemetry captures for later replay.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings can also come from a YAML file given with --config. Flags override
values from the file.

For WebSocket authentication, the password is read from the FOCLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&legacyFraming, "legacy", false, "Use the legacy unchecked framing")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the --config file, if any, and applies the flags the
// user set on top of it
func loadConfig(cmd *cobra.Command) (config.File, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return config.File{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Link.Port = portName
		cfg.Link.URL = ""
	}
	if flags.Changed("url") {
		cfg.Link.URL = wsURL
		cfg.Link.Port = ""
	}
	if flags.Changed("baud") {
		cfg.Link.Baud = baudRate
	}
	if flags.Changed("username") {
		cfg.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Link.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("legacy") {
		cfg.Link.Legacy = legacyFraming
	}

	if err := config.Validate(&cfg); err != nil {
		return config.File{}, err
	}
	if cfg.Link.Port == "" && cfg.Link.URL == "" {
		return config.File{}, fmt.Errorf("either --port or --url must be specified")
	}
	return cfg, nil
}
