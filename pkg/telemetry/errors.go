// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "errors"

var (
	// ErrRunning is returned by Start on a pipeline that is already running
	ErrRunning = errors.New("pipeline already running")

	// ErrInvalidCapacity is returned for a buffer capacity below 1
	ErrInvalidCapacity = errors.New("invalid buffer capacity")

	// ErrInvalidWatermarks is returned unless 0 < low < high <= 1
	ErrInvalidWatermarks = errors.New("invalid drop watermarks")
)
