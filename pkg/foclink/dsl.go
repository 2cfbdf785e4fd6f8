// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ActionKind identifies a parsed operator command
type ActionKind int

// Command actions
const (
	ActionRaw ActionKind = iota + 1
	ActionSync
	ActionRead
	ActionWrite
	ActionTelemetry
	ActionSave
	ActionCalibrate
	ActionBootloader
)

func (k ActionKind) String() string {
	switch k {
	case ActionRaw:
		return "raw"
	case ActionSync:
		return "sync"
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	case ActionTelemetry:
		return "telemetry"
	case ActionSave:
		return "save"
	case ActionCalibrate:
		return "calibrate"
	case ActionBootloader:
		return "bootloader"
	}
	return "unknown"
}

// Action is a structured command. Which fields are set depends on Kind:
//   - ActionRaw: Bytes
//   - ActionRead: RegisterID
//   - ActionWrite: RegisterID, Value
//   - ActionTelemetry: Motor, Registers, FrequencyHz
type Action struct {
	Kind        ActionKind
	RegisterID  uint8
	Value       float64
	Motor       uint8
	Registers   []uint8
	FrequencyHz float64
	Bytes       []byte
}

var rateToken = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*hz$`)

// ParseCommand parses a command line with the default catalog
func ParseCommand(text string) (Action, bool) {
	return DefaultCatalog.ParseCommand(text)
}

// ParseCommand parses one operator command line:
//
//	raw <hex bytes...>
//	sync | save | calibrate | bootloader
//	get|read <register>
//	set|write <register> <number>
//	telemetry <motor> <register>... <rate>hz
//
// Register tokens resolve by exact name, then by name prefix. Any malformed
// line returns false.
func (c *Catalog) ParseCommand(text string) (Action, bool) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Action{}, false
	}

	switch strings.ToLower(tokens[0]) {
	case "raw":
		raw := parseHexBytes(tokens[1:])
		if len(raw) == 0 {
			return Action{}, false
		}
		return Action{Kind: ActionRaw, Bytes: raw}, true

	case "sync":
		return Action{Kind: ActionSync}, true
	case "save":
		return Action{Kind: ActionSave}, true
	case "calibrate":
		return Action{Kind: ActionCalibrate}, true
	case "bootloader":
		return Action{Kind: ActionBootloader}, true

	case "get", "read":
		if len(tokens) < 2 {
			return Action{}, false
		}
		id, ok := c.Resolve(tokens[1])
		if !ok {
			return Action{}, false
		}
		return Action{Kind: ActionRead, RegisterID: id}, true

	case "set", "write":
		if len(tokens) < 3 {
			return Action{}, false
		}
		id, ok := c.Resolve(tokens[1])
		if !ok {
			return Action{}, false
		}
		value, ok := parseNumber(tokens[2])
		if !ok {
			return Action{}, false
		}
		return Action{Kind: ActionWrite, RegisterID: id, Value: value}, true

	case "telemetry":
		return c.parseTelemetry(tokens[1:])
	}

	return Action{}, false
}

func (c *Catalog) parseTelemetry(args []string) (Action, bool) {
	// motor, at least one register, rate
	if len(args) < 3 {
		return Action{}, false
	}
	motor, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return Action{}, false
	}

	m := rateToken.FindStringSubmatch(args[len(args)-1])
	if m == nil {
		return Action{}, false
	}
	hz, err := strconv.ParseFloat(m[1], 64)
	if err != nil || hz <= 0 {
		return Action{}, false
	}

	var registers []uint8
	for _, tok := range args[1 : len(args)-1] {
		if id, ok := c.Resolve(tok); ok {
			registers = append(registers, id)
		}
	}
	if len(registers) == 0 {
		return Action{}, false
	}

	return Action{
		Kind:        ActionTelemetry,
		Motor:       uint8(motor),
		Registers:   registers,
		FrequencyHz: hz,
	}, true
}

// parseHexBytes accepts whitespace or comma separated hex tokens with an
// optional 0x prefix. Unparseable tokens are skipped.
func parseHexBytes(tokens []string) []byte {
	fields := strings.FieldsFunc(strings.Join(tokens, " "), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		v, err := strconv.ParseUint(f, 16, 64)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// parseNumber accepts decimal, float and 0x/0b/0o prefixed integers
func parseNumber(tok string) (float64, bool) {
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return float64(v), true
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
