// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPacket formats a packet into a human-readable string, naming
// registers from the catalog
func (c *Catalog) FormatPacket(p Packet) string {
	timestamp := p.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s ('%c' 0x%02X) len=%d\n", timestamp, p.Kind, printable(p.RawType), p.RawType, len(p.Payload))
	return result + c.FormatPayload(p)
}

// FormatPayload formats the packet payload based on its kind
func (c *Catalog) FormatPayload(p Packet) string {
	switch p.Kind {
	case KindResponse:
		res, err := c.ParseResponse(p.Payload)
		if err != nil {
			break
		}
		return "  " + c.FormatResponse(res) + "\n"

	case KindRegister:
		if len(p.Payload) == 0 {
			break
		}
		name := c.Name(p.Payload[0])
		if len(p.Payload) == 1 {
			return fmt.Sprintf("  Read %s (0x%02X)\n", name, p.Payload[0])
		}
		return fmt.Sprintf("  Write %s (0x%02X): %s\n", name, p.Payload[0], hexString(p.Payload[1:]))

	case KindTelemetryHeader:
		header, err := ParseTelemetryHeader(p.Payload)
		if err != nil {
			break
		}
		return c.FormatTelemetryHeader(header)

	case KindLog, KindDebug, KindAlert:
		return fmt.Sprintf("  %s\n", strings.TrimRight(p.Text(), "\r\n\x00"))

	case KindSync:
		return "  (sync)\n"
	}

	if len(p.Payload) == 0 {
		return "  (no payload)\n"
	}
	return formatHexDump(p.Payload)
}

// FormatResponse formats a register response on one line
func (c *Catalog) FormatResponse(res RegisterResponse) string {
	name := c.Name(res.RegisterID)
	if len(res.Value) == 0 {
		return fmt.Sprintf("%s (0x%02X) = raw %s", name, res.RegisterID, hexString(res.Raw))
	}
	return fmt.Sprintf("%s (0x%02X) = %s", name, res.RegisterID, FormatValue(res.Value))
}

// FormatTelemetryHeader lists the schema registers
func (c *Catalog) FormatTelemetryHeader(h TelemetryHeader) string {
	result := fmt.Sprintf("  Telemetry %d: %d registers\n", h.TelemetryID, len(h.Registers))
	for i, ref := range h.Registers {
		result += fmt.Sprintf("    [%d] motor %d %s (0x%02X)\n", i, ref.Motor, c.Name(ref.Register), ref.Register)
	}
	return result
}

// FormatTelemetry formats one decoded telemetry sample
func (c *Catalog) FormatTelemetry(d TelemetryData) string {
	parts := make([]string, 0, len(d.Values))
	for i, v := range d.Values {
		name := "?"
		if i < len(d.Registers) {
			name = fmt.Sprintf("m%d.%s", d.Registers[i].Motor, c.Name(d.Registers[i].Register))
		}
		parts = append(parts, name+"="+FormatValue(v))
	}
	return fmt.Sprintf("  Telemetry %d: %s\n", d.TelemetryID, strings.Join(parts, " "))
}

// FormatValue formats a scalar as a number and a composite as a list
func FormatValue(v Value) string {
	if len(v) == 1 {
		return strconv.FormatFloat(v[0], 'g', 6, 64)
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func printable(b byte) byte {
	if b < 0x20 || b > 0x7E {
		return '.'
	}
	return b
}

func hexString(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02X", x)
	}
	return strings.Join(parts, " ")
}

func formatHexDump(payload []byte) string {
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
