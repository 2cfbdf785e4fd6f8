// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// foclink - FOC motor controller link tool
//
// A CLI tool for reading and writing controller registers and streaming
// telemetry over a serial or WebSocket link.

package main

import (
	"os"

	"github.com/Thermoquad/foclink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
