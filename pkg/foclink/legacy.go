// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"bytes"
	"fmt"
)

// LegacyFramer speaks the original unhardened framing used by early firmware:
//
//	0xA5 [SIZE] [TYPE] [PAYLOAD...]   SIZE = len(TYPE + PAYLOAD)
//
// There is no escaping and no CRC, so a marker byte inside a payload or a
// dropped byte silently misaligns the stream. Kept for compatibility only.
type LegacyFramer struct {
	buffer []byte
}

// NewLegacyFramer creates a new legacy frame parser
func NewLegacyFramer() *LegacyFramer {
	return &LegacyFramer{}
}

// Reset discards buffered bytes
func (l *LegacyFramer) Reset() {
	l.buffer = l.buffer[:0]
}

// Encode encodes a frame in the legacy wire format
func (l *LegacyFramer) Encode(frameType byte, payload []byte) ([]byte, error) {
	return EncodeLegacyFrame(frameType, payload)
}

// EncodeLegacyFrame creates a legacy wire frame
func EncodeLegacyFrame(frameType byte, payload []byte) ([]byte, error) {
	if len(payload)+1 > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxFrameLen-1)
	}
	out := make([]byte, 0, 3+len(payload))
	out = append(out, MarkerByte, byte(1+len(payload)), frameType)
	out = append(out, payload...)
	return out, nil
}

// FeedFunc appends chunk to the scan buffer and emits every complete frame.
// Bytes before a marker are skipped.
func (l *LegacyFramer) FeedFunc(chunk []byte, handle FrameHandler) {
	l.buffer = append(l.buffer, chunk...)

	for len(l.buffer) >= 3 {
		idx := bytes.IndexByte(l.buffer, MarkerByte)
		if idx < 0 {
			l.buffer = l.buffer[:0]
			return
		}
		if idx > 0 {
			l.buffer = l.buffer[:copy(l.buffer, l.buffer[idx:])]
			if len(l.buffer) < 3 {
				return
			}
		}

		size := int(l.buffer[1])
		if size == 0 {
			// No room for a type byte; skip this marker
			l.buffer = l.buffer[:copy(l.buffer, l.buffer[1:])]
			handle(nil, fmt.Errorf("%w: legacy size 0", ErrFrameTooShort))
			continue
		}

		frameLen := size + 2
		if len(l.buffer) < frameLen {
			return
		}

		payload := make([]byte, size-1)
		copy(payload, l.buffer[3:frameLen])
		frame := &Frame{Type: l.buffer[2], Payload: payload}
		l.buffer = l.buffer[:copy(l.buffer, l.buffer[frameLen:])]
		handle(frame, nil)
	}
}

// Feed returns the frames completed by chunk
func (l *LegacyFramer) Feed(chunk []byte) []Frame {
	var frames []Frame
	l.FeedFunc(chunk, func(frame *Frame, err error) {
		if err == nil {
			frames = append(frames, *frame)
		}
	})
	return frames
}
