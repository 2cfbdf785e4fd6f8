// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is a decoded register value: one element for a primitive register,
// one per part for a composite, empty when the register is unknown.
type Value []float64

// Float returns the first element, or 0 for an empty value
func (v Value) Float() float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// EncodeValue encodes v with enc. Composite parts read successive elements
// of v; missing elements encode as 0.
func EncodeValue(enc Encoding, v Value) []byte {
	out := make([]byte, 0, enc.Size())
	for i, part := range enc.Parts {
		var x float64
		if i < len(v) {
			x = v[i]
		}
		out = appendPrimitive(out, part, x)
	}
	return out
}

// EncodeRegisterValue encodes v for def
func EncodeRegisterValue(def RegisterDefinition, v Value) []byte {
	return EncodeValue(def.Encoding, v)
}

func appendPrimitive(out []byte, p Primitive, x float64) []byte {
	switch p {
	case PrimitiveU8:
		return append(out, byte(int64(x)))
	case PrimitiveU32:
		return binary.LittleEndian.AppendUint32(out, uint32(int64(x)))
	case PrimitiveF32:
		return binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(x)))
	}
	return out
}

// DecodeValue decodes a value laid out as enc starting at offset.
// Returns the value and the number of bytes consumed, so several registers
// can be read back-to-back from one undelimited buffer. An encoding with no
// known parts decodes to (0, 0).
func DecodeValue(enc Encoding, payload []byte, offset int) (Value, int, error) {
	if enc.Size() == 0 {
		return Value{0}, 0, nil
	}
	if offset < 0 || offset+enc.Size() > len(payload) {
		return nil, 0, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrShortPayload, enc.Size(), offset, len(payload))
	}

	value := make(Value, 0, len(enc.Parts))
	cursor := offset
	for _, part := range enc.Parts {
		value = append(value, decodePrimitive(part, payload[cursor:]))
		cursor += part.Size()
	}
	return value, cursor - offset, nil
}

func decodePrimitive(p Primitive, b []byte) float64 {
	switch p {
	case PrimitiveU8:
		return float64(b[0])
	case PrimitiveU32:
		return float64(binary.LittleEndian.Uint32(b))
	case PrimitiveF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return 0
}
