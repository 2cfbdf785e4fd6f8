// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownSchema is returned for telemetry data whose header has not been
// learned yet
var ErrUnknownSchema = errors.New("no telemetry header for id")

// TelemetryDecoder learns telemetry headers and decodes data frames with them.
// Not safe for concurrent use; the session read loop owns it.
type TelemetryDecoder struct {
	catalog *Catalog
	headers map[uint8]TelemetryHeader
}

// NewTelemetryDecoder creates a decoder resolving register encodings in
// catalog (DefaultCatalog when nil)
func NewTelemetryDecoder(catalog *Catalog) *TelemetryDecoder {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &TelemetryDecoder{
		catalog: catalog,
		headers: make(map[uint8]TelemetryHeader),
	}
}

// Learn stores a copy of header, replacing any earlier header with the same id
func (t *TelemetryDecoder) Learn(header TelemetryHeader) {
	t.headers[header.TelemetryID] = header.Clone()
}

// Header returns a copy of the learned header for id
func (t *TelemetryDecoder) Header(id uint8) (TelemetryHeader, bool) {
	h, ok := t.headers[id]
	if !ok {
		return TelemetryHeader{}, false
	}
	return h.Clone(), true
}

// Reset forgets every learned header
func (t *TelemetryDecoder) Reset() {
	clear(t.headers)
}

// Decode decodes a data payload [telemetryId][values...] by walking the
// header's registers in order and advancing a cursor by each value's width.
// Registers missing from the catalog decode as 0 without consuming bytes.
// The result owns its slices; changing it never affects the learned header.
func (t *TelemetryDecoder) Decode(payload []byte) (TelemetryData, error) {
	if len(payload) == 0 {
		return TelemetryData{}, fmt.Errorf("%w: empty telemetry frame", ErrShortPayload)
	}
	header, ok := t.headers[payload[0]]
	if !ok {
		return TelemetryData{}, fmt.Errorf("%w %d", ErrUnknownSchema, payload[0])
	}

	data := TelemetryData{
		TelemetryID: header.TelemetryID,
		Registers:   slices.Clone(header.Registers),
		Values:      make([]Value, 0, len(header.Registers)),
		Raw:         slices.Clone(payload),
	}
	cursor := 1
	for _, ref := range header.Registers {
		def, ok := t.catalog.Lookup(ref.Register)
		if !ok {
			data.Values = append(data.Values, Value{0})
			continue
		}
		value, size, err := DecodeValue(def.Encoding, payload, cursor)
		if err != nil {
			return TelemetryData{}, fmt.Errorf("telemetry %d register %s: %w", header.TelemetryID, def.Name, err)
		}
		data.Values = append(data.Values, value)
		cursor += size
	}
	return data, nil
}

// HandleFrame feeds a header or data frame through the decoder. Header frames
// are learned and returned; data frames are decoded. Other frame types are
// ignored.
func (t *TelemetryDecoder) HandleFrame(f Frame) (*TelemetryHeader, *TelemetryData, error) {
	switch f.Type {
	case TypeTelemetryHeader:
		header, err := ParseTelemetryHeader(f.Payload)
		if err != nil {
			return nil, nil, err
		}
		t.Learn(header)
		return &header, nil, nil
	case TypeTelemetry:
		data, err := t.Decode(f.Payload)
		if err != nil {
			return nil, nil, err
		}
		return nil, &data, nil
	}
	return nil, nil, nil
}
