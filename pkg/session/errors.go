// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "errors"

var (
	// ErrNotOpen is returned by operations on a closed session
	ErrNotOpen = errors.New("session not open")

	// ErrAlreadyOpen is returned by Open on an open session
	ErrAlreadyOpen = errors.New("session already open")

	// ErrInvalidFrequency is returned for a telemetry rate that is not > 0
	ErrInvalidFrequency = errors.New("telemetry frequency must be > 0")

	// ErrNoAction is returned by Send for a line that does not parse.
	// Callers are expected to ignore it.
	ErrNoAction = errors.New("no action")
)
