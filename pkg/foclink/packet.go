// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"slices"
	"time"
)

// PacketKind is the semantic type of a frame
type PacketKind int

// Packet kinds
const (
	KindUnknown PacketKind = iota
	KindRegister
	KindResponse
	KindTelemetryHeader
	KindTelemetry
	KindSync
	KindAlert
	KindDebug
	KindLog
	KindCommandResponse
)

func (k PacketKind) String() string {
	switch k {
	case KindRegister:
		return "REGISTER"
	case KindResponse:
		return "RESPONSE"
	case KindTelemetryHeader:
		return "TELEMETRY_HEADER"
	case KindTelemetry:
		return "TELEMETRY"
	case KindSync:
		return "SYNC"
	case KindAlert:
		return "ALERT"
	case KindDebug:
		return "DEBUG"
	case KindLog:
		return "LOG"
	case KindCommandResponse:
		return "COMMAND_RESPONSE"
	}
	return "UNKNOWN"
}

// KindOf maps a frame type byte to its packet kind
func KindOf(frameType byte) PacketKind {
	switch frameType {
	case TypeRegister:
		return KindRegister
	case TypeResponse:
		return KindResponse
	case TypeTelemetryHeader:
		return KindTelemetryHeader
	case TypeTelemetry:
		return KindTelemetry
	case TypeSync:
		return KindSync
	case TypeAlert:
		return KindAlert
	case TypeDebug:
		return KindDebug
	case TypeLog:
		return KindLog
	case TypeCommandResponse:
		return KindCommandResponse
	}
	return KindUnknown
}

// Packet is a typed frame handed to subscribers. Each receiver owns its copy.
type Packet struct {
	Kind      PacketKind
	RawType   byte
	Payload   []byte
	Timestamp time.Time
}

// NewPacket wraps a decoded frame
func NewPacket(f Frame) Packet {
	return Packet{
		Kind:      KindOf(f.Type),
		RawType:   f.Type,
		Payload:   f.Payload,
		Timestamp: time.Now(),
	}
}

// Clone returns a copy sharing no memory with p
func (p Packet) Clone() Packet {
	p.Payload = slices.Clone(p.Payload)
	return p
}

// Text returns the payload as a string, for log, debug and alert packets
func (p Packet) Text() string {
	return string(p.Payload)
}
