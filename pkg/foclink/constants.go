// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package foclink implements the binary link protocol spoken by the FOC motor
// controller firmware.
//
// The package covers the wire framing (marker byte, escaping, CRC-32/MPEG-2),
// the register catalog and its fixed-width value codec, the typed packet
// union, self-describing telemetry decoding and the textual command DSL used
// by operators.
package foclink

// Framing bytes
const (
	MarkerByte = 0xA5
	EscByte    = 0xDB
	EscMarker  = 0xDC // escaped form of MarkerByte
	EscEsc     = 0xDD // escaped form of EscByte
)

// Frame size limits. LEN covers TYPE, PAYLOAD and the 4 CRC bytes.
const (
	MinFrameLen    = 5
	MaxFrameLen    = 255
	MaxPayloadSize = MaxFrameLen - 1 - crcSize
	crcSize        = 4
)

// CRC-32/MPEG-2 configuration
const (
	crcPolynomial = 0x04C11DB7
	crcInitial    = 0xFFFFFFFF
)

// Frame types (ASCII)
const (
	TypeRegister        = 'R'
	TypeResponse        = 'r'
	TypeTelemetryHeader = 'H'
	TypeTelemetry       = 'T'
	TypeSync            = 'S'
	TypeAlert           = 'A'
	TypeDebug           = 'D'
	TypeLog             = 'L'
	TypeCommand         = 'C'
	TypeCommandResponse = 'c'
)

// Command frame opcodes
const (
	CmdWrite      = 0x01 // persist settings to flash
	CmdCalibrate  = 0x02
	CmdBootloader = 0x03
)

// Registers the link layer itself drives
const (
	RegTelemetryReg        = 0x1A
	RegTelemetryCtrl       = 0x1B
	RegTelemetryDownsample = 0x1C
	RegTelemetryMinElapsed = 0x1E
	RegMotorAddress        = 0x7F
)

// FramerState is the state of the hardened frame parser.
type FramerState int

// Framer states
const (
	StateIdle FramerState = iota
	StateInFrame
	StateInFrameEscaped
)

func (s FramerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInFrame:
		return "IN_FRAME"
	case StateInFrameEscaped:
		return "IN_FRAME_ESCAPED"
	}
	return "UNKNOWN"
}
