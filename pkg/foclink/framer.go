// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"encoding/binary"
	"fmt"
)

// Framer implements the hardened frame parser state machine.
//
// A marker byte in any state starts a new frame and abandons the partial one,
// so the parser always resynchronizes on the next marker after corruption.
type Framer struct {
	state    FramerState
	buffer   []byte
	expected int // 1 + LEN once the length byte has arrived
}

// NewFramer creates a new hardened frame parser
func NewFramer() *Framer {
	return &Framer{
		state:  StateIdle,
		buffer: make([]byte, 0, 1+MaxFrameLen),
	}
}

// Reset returns the parser to idle and discards any partial frame
func (f *Framer) Reset() {
	f.state = StateIdle
	f.buffer = f.buffer[:0]
	f.expected = 0
}

// State returns the current parser state
func (f *Framer) State() FramerState {
	return f.state
}

// Encode encodes a frame in the hardened wire format
func (f *Framer) Encode(frameType byte, payload []byte) ([]byte, error) {
	return EncodeFrame(frameType, payload)
}

// DecodeByte processes a single byte through the state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error when a partial frame is discarded or fails its CRC.
func (f *Framer) DecodeByte(b byte) (*Frame, error) {
	if b == MarkerByte {
		truncated := f.state != StateIdle && len(f.buffer) > 0
		f.Reset()
		f.state = StateInFrame
		if truncated {
			return nil, ErrTruncatedFrame
		}
		return nil, nil
	}

	switch f.state {
	case StateIdle:
		// Waiting for marker
		return nil, nil

	case StateInFrame:
		if b == EscByte {
			f.state = StateInFrameEscaped
			return nil, nil
		}
		return f.append(b)

	case StateInFrameEscaped:
		switch b {
		case EscMarker:
			f.state = StateInFrame
			return f.append(MarkerByte)
		case EscEsc:
			f.state = StateInFrame
			return f.append(EscByte)
		}
		f.Reset()
		return nil, fmt.Errorf("%w: 0x%02X after escape", ErrBadEscape, b)

	default:
		f.Reset()
		return nil, fmt.Errorf("invalid state: %d", f.state)
	}
}

func (f *Framer) append(b byte) (*Frame, error) {
	f.buffer = append(f.buffer, b)

	if len(f.buffer) == 1 {
		if b < MinFrameLen {
			f.Reset()
			return nil, fmt.Errorf("%w: %d (min %d)", ErrFrameTooShort, b, MinFrameLen)
		}
		f.expected = 1 + int(b)
		return nil, nil
	}

	if len(f.buffer) < f.expected {
		return nil, nil
	}

	frame, err := parseFrame(f.buffer)
	f.Reset()
	return frame, err
}

// parseFrame validates an unescaped [LEN][TYPE][PAYLOAD][CRC] buffer
func parseFrame(raw []byte) (*Frame, error) {
	payloadEnd := len(raw) - crcSize
	received := binary.LittleEndian.Uint32(raw[payloadEnd:])
	calculated := CalculateCRC(raw[:payloadEnd])
	if received != calculated {
		return nil, fmt.Errorf("%w: expected 0x%08X, got 0x%08X", ErrCRCMismatch, calculated, received)
	}

	payload := make([]byte, payloadEnd-2)
	copy(payload, raw[2:payloadEnd])
	return &Frame{Type: raw[1], Payload: payload}, nil
}

// FeedFunc runs every byte of chunk through the parser, calling handle for
// each completed frame and each discarded one.
func (f *Framer) FeedFunc(chunk []byte, handle FrameHandler) {
	for _, b := range chunk {
		frame, err := f.DecodeByte(b)
		if err != nil || frame != nil {
			handle(frame, err)
		}
	}
}

// Feed returns the frames completed by chunk. Corrupt and partial frames are
// dropped silently.
func (f *Framer) Feed(chunk []byte) []Frame {
	var frames []Frame
	f.FeedFunc(chunk, func(frame *Frame, err error) {
		if err == nil {
			frames = append(frames, *frame)
		}
	})
	return frames
}
