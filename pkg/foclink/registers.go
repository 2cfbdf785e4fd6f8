// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"fmt"
	"strings"
)

// Primitive is a fixed-width register value encoding
type Primitive int

// Primitive encodings. Multi-byte values are little-endian.
const (
	PrimitiveU8 Primitive = iota + 1
	PrimitiveU32
	PrimitiveF32
)

// Size returns the encoded width in bytes, or 0 for an unknown primitive
func (p Primitive) Size() int {
	switch p {
	case PrimitiveU8:
		return 1
	case PrimitiveU32, PrimitiveF32:
		return 4
	}
	return 0
}

func (p Primitive) String() string {
	switch p {
	case PrimitiveU8:
		return "u8"
	case PrimitiveU32:
		return "u32-le"
	case PrimitiveF32:
		return "f32-le"
	}
	return "unknown"
}

// Encoding describes how a register value is laid out: either a single
// primitive or an ordered composite of primitives packed without padding.
type Encoding struct {
	Parts     []Primitive
	Composite bool
}

// Scalar returns a single-primitive encoding
func Scalar(p Primitive) Encoding {
	return Encoding{Parts: []Primitive{p}}
}

// Composite returns an ordered multi-part encoding
func Composite(parts ...Primitive) Encoding {
	return Encoding{Parts: parts, Composite: true}
}

// Size returns the total encoded width in bytes
func (e Encoding) Size() int {
	size := 0
	for _, p := range e.Parts {
		size += p.Size()
	}
	return size
}

func (e Encoding) String() string {
	if !e.Composite {
		if len(e.Parts) == 1 {
			return e.Parts[0].String()
		}
		return "unknown"
	}
	names := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		names[i] = p.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// RegisterDefinition maps a register id to its name and encoding
type RegisterDefinition struct {
	ID          uint8
	Name        string
	Encoding    Encoding
	Description string
}

// Catalog is an immutable register table indexed by id and name
type Catalog struct {
	defs   []RegisterDefinition
	byID   map[uint8]RegisterDefinition
	byName map[string]RegisterDefinition
}

// NewCatalog builds a catalog, rejecting duplicate ids or names
func NewCatalog(defs []RegisterDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]RegisterDefinition, len(defs)),
		byID:   make(map[uint8]RegisterDefinition, len(defs)),
		byName: make(map[string]RegisterDefinition, len(defs)),
	}
	copy(c.defs, defs)
	for _, def := range defs {
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate register id 0x%02X", def.ID)
		}
		name := strings.ToUpper(def.Name)
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("duplicate register name %s", def.Name)
		}
		c.byID[def.ID] = def
		c.byName[name] = def
	}
	return c, nil
}

// MustNewCatalog is NewCatalog for static tables. Panics on error.
func MustNewCatalog(defs []RegisterDefinition) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(fmt.Sprintf("foclink: %v", err))
	}
	return c
}

// Definitions returns the registers in declaration order
func (c *Catalog) Definitions() []RegisterDefinition {
	out := make([]RegisterDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Lookup returns the definition for id
func (c *Catalog) Lookup(id uint8) (RegisterDefinition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// LookupName returns the definition with the exact (case-insensitive) name
func (c *Catalog) LookupName(name string) (RegisterDefinition, bool) {
	def, ok := c.byName[strings.ToUpper(name)]
	return def, ok
}

// Resolve maps an operator token to a register id: exact name first, then
// the first register in declaration order whose name has the token as prefix.
func (c *Catalog) Resolve(token string) (uint8, bool) {
	upper := strings.ToUpper(token)
	if upper == "" {
		return 0, false
	}
	if def, ok := c.byName[upper]; ok {
		return def.ID, true
	}
	for _, def := range c.defs {
		if strings.HasPrefix(strings.ToUpper(def.Name), upper) {
			return def.ID, true
		}
	}
	return 0, false
}

// Name returns the register name for id, or a hex placeholder
func (c *Catalog) Name(id uint8) string {
	if def, ok := c.byID[id]; ok {
		return def.Name
	}
	return fmt.Sprintf("REG_0x%02X", id)
}

var (
	u8  = Scalar(PrimitiveU8)
	u32 = Scalar(PrimitiveU32)
	f32 = Scalar(PrimitiveF32)
)

// DefaultCatalog is the register subset exposed by the FOC firmware
var DefaultCatalog = MustNewCatalog([]RegisterDefinition{
	{ID: 0x01, Name: "TARGET", Encoding: f32, Description: "Commanded target (units depend on mode)"},
	{ID: 0x04, Name: "ENABLE", Encoding: u8, Description: "Enable/disable motor"},
	{ID: 0x05, Name: "CONTROL_MODE", Encoding: u8, Description: "Control mode selector"},
	{ID: 0x06, Name: "TORQUE_MODE", Encoding: u8, Description: "Torque mode selector"},
	{ID: RegTelemetryReg, Name: "TELEMETRY_REG", Encoding: u8, Description: "Telemetry register list (variable payload on write)"},
	{ID: RegTelemetryCtrl, Name: "TELEMETRY_CTRL", Encoding: u8, Description: "Telemetry control"},
	{ID: RegTelemetryDownsample, Name: "TELEMETRY_DOWNSAMPLE", Encoding: u32, Description: "Telemetry downsample factor"},
	{ID: RegTelemetryMinElapsed, Name: "TELEMETRY_MIN_ELAPSED", Encoding: u32, Description: "Minimum time between telemetry frames (us)"},
	{ID: 0x30, Name: "VEL_PID_P", Encoding: f32, Description: "Velocity PID P term"},
	{ID: 0x31, Name: "VEL_PID_I", Encoding: f32, Description: "Velocity PID I term"},
	{ID: 0x32, Name: "VEL_PID_D", Encoding: f32, Description: "Velocity PID D term"},
	{ID: 0x33, Name: "VEL_PID_LIM", Encoding: f32, Description: "Velocity PID output limit"},
	{ID: 0x34, Name: "VEL_PID_RAMP", Encoding: f32, Description: "Velocity PID output ramp"},
	{ID: 0x35, Name: "VEL_LPF_T", Encoding: f32, Description: "Velocity low-pass filter time constant"},
	{ID: 0x36, Name: "ANG_PID_P", Encoding: f32, Description: "Angle PID P term"},
	{ID: 0x37, Name: "ANG_PID_I", Encoding: f32, Description: "Angle PID I term"},
	{ID: 0x38, Name: "ANG_PID_D", Encoding: f32, Description: "Angle PID D term"},
	{ID: 0x39, Name: "ANG_PID_LIM", Encoding: f32, Description: "Angle PID output limit"},
	{ID: 0x3A, Name: "ANG_PID_RAMP", Encoding: f32, Description: "Angle PID output ramp"},
	{ID: 0x3B, Name: "ANG_LPF_T", Encoding: f32, Description: "Angle low-pass filter time constant"},
	{ID: 0x50, Name: "VOLTAGE_LIMIT", Encoding: f32, Description: "Maximum motor voltage"},
	{ID: 0x51, Name: "CURRENT_LIMIT", Encoding: f32, Description: "Maximum motor current"},
	{ID: 0x52, Name: "VELOCITY_LIMIT", Encoding: f32, Description: "Maximum target velocity"},
	{ID: 0x53, Name: "DRIVER_VOLTAGE_LIMIT", Encoding: f32, Description: "Driver voltage limit"},
	{ID: 0x54, Name: "PWM_FREQUENCY", Encoding: u32, Description: "PWM frequency (Hz)"},
	{ID: 0x55, Name: "DRIVER_VOLTAGE_PSU", Encoding: f32, Description: "Driver power supply voltage"},
	{ID: 0x63, Name: "POLE_PAIRS", Encoding: u8, Description: "Motor pole pairs (read-only)"},
	{ID: 0x64, Name: "PHASE_RESISTANCE", Encoding: f32, Description: "Phase resistance (ohms)"},
	{ID: 0x65, Name: "KV", Encoding: f32, Description: "Motor KV"},
	{ID: 0x66, Name: "INDUCTANCE", Encoding: f32, Description: "Phase inductance (H)"},
	{ID: 0x5F, Name: "MOTION_DOWNSAMPLE", Encoding: u8, Description: "ASCII motion downsample factor"},
	{ID: 0x70, Name: "NUM_MOTORS", Encoding: u8, Description: "Number of motors detected"},
	{ID: RegMotorAddress, Name: "MOTOR_ADDRESS", Encoding: u8, Description: "Selected motor address"},
	{ID: 0x10, Name: "POSITION", Encoding: Composite(PrimitiveU32, PrimitiveF32), Description: "Motor position (full rotations, angle)"},
	{ID: 0x12, Name: "SENSOR_ANGLE", Encoding: f32, Description: "Sensor angle"},
	{ID: 0x11, Name: "VELOCITY", Encoding: f32, Description: "Motor shaft velocity"},
})
