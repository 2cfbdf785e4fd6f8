// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"encoding/binary"
	"fmt"
)

// Frame is a single validated unit lifted off the wire.
type Frame struct {
	Type    byte
	Payload []byte
}

// FrameHandler receives each completed frame or framing error in stream
// order. Exactly one of f and err is meaningful.
type FrameHandler func(f *Frame, err error)

// FrameCodec is implemented by both wire variants.
type FrameCodec interface {
	Encode(frameType byte, payload []byte) ([]byte, error)
	FeedFunc(chunk []byte, handle FrameHandler)
	Reset()
}

// EncodeFrame creates a complete wire-formatted frame:
// marker, then escaped LEN | TYPE | PAYLOAD | CRC32LE.
func EncodeFrame(frameType byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	length := 1 + len(payload) + crcSize
	data := make([]byte, 0, 1+length)
	data = append(data, byte(length), frameType)
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = binary.LittleEndian.AppendUint32(data, crc)

	stuffed := stuffBytes(data)
	out := make([]byte, 0, 1+len(stuffed))
	out = append(out, MarkerByte)
	out = append(out, stuffed...)
	return out, nil
}

// MustEncodeFrame is EncodeFrame for payloads known to fit.
// Panics on encoding error.
func MustEncodeFrame(frameType byte, payload []byte) []byte {
	data, err := EncodeFrame(frameType, payload)
	if err != nil {
		panic(fmt.Sprintf("foclink: encode error: %v", err))
	}
	return data
}

// stuffBytes escapes the marker and escape bytes.
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		switch b {
		case MarkerByte:
			result = append(result, EscByte, EscMarker)
		case EscByte:
			result = append(result, EscByte, EscEsc)
		default:
			result = append(result, b)
		}
	}
	return result
}
