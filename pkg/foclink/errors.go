// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import "errors"

// Framing and integrity errors reported by Framer.DecodeByte. Framer.Feed
// drops them; they exist so callers can count link quality.
var (
	ErrFrameTooShort  = errors.New("frame length below minimum")
	ErrBadEscape      = errors.New("invalid escape sequence")
	ErrTruncatedFrame = errors.New("frame truncated by marker")
	ErrCRCMismatch    = errors.New("CRC mismatch")
)

// Encoding and decoding errors
var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrShortPayload    = errors.New("payload too short")
	ErrUnknownRegister = errors.New("unknown register")
)

// IsFramingError reports whether err is a resynchronization-class error
// (bad escape, short length, truncated frame).
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFrameTooShort) ||
		errors.Is(err, ErrBadEscape) ||
		errors.Is(err, ErrTruncatedFrame)
}
