// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package foclink

import (
	"fmt"
	"slices"
)

// RegisterRef addresses one register on one motor
type RegisterRef struct {
	Motor    uint8
	Register uint8
}

// RegisterResponse is a decoded register read reply
type RegisterResponse struct {
	RegisterID uint8
	Value      Value // empty when the register is unknown
	Raw        []byte
}

// TelemetryHeader declares the layout of TelemetryData frames carrying the
// same telemetry id
type TelemetryHeader struct {
	TelemetryID uint8
	Registers   []RegisterRef
	Raw         []byte
}

// TelemetryData is one decoded telemetry sample, one value per header register
type TelemetryData struct {
	TelemetryID uint8
	Registers   []RegisterRef
	Values      []Value
	Raw         []byte
}

// Clone returns a copy sharing no memory with r
func (r RegisterResponse) Clone() RegisterResponse {
	r.Value = slices.Clone(r.Value)
	r.Raw = slices.Clone(r.Raw)
	return r
}

// Clone returns a copy sharing no memory with h
func (h TelemetryHeader) Clone() TelemetryHeader {
	h.Registers = slices.Clone(h.Registers)
	h.Raw = slices.Clone(h.Raw)
	return h
}

// Clone returns a copy sharing no memory with d
func (d TelemetryData) Clone() TelemetryData {
	d.Registers = slices.Clone(d.Registers)
	d.Raw = slices.Clone(d.Raw)
	if d.Values != nil {
		values := make([]Value, len(d.Values))
		for i, v := range d.Values {
			values[i] = slices.Clone(v)
		}
		d.Values = values
	}
	return d
}

// Sample maps the decoded values onto traces in refs order. A trace whose
// register is absent from the frame reads 0; composite values contribute
// their first element.
func (d TelemetryData) Sample(refs []RegisterRef) []float64 {
	out := make([]float64, len(refs))
	for i, ref := range refs {
		for j, reg := range d.Registers {
			if reg == ref && j < len(d.Values) {
				out[i] = d.Values[j].Float()
				break
			}
		}
	}
	return out
}

// ParseResponse decodes a response payload [id][value] against the catalog.
// Unknown registers keep the raw bytes with an empty value.
func (c *Catalog) ParseResponse(payload []byte) (RegisterResponse, error) {
	if len(payload) == 0 {
		return RegisterResponse{}, fmt.Errorf("%w: empty response", ErrShortPayload)
	}
	res := RegisterResponse{RegisterID: payload[0], Raw: slices.Clone(payload)}
	def, ok := c.Lookup(payload[0])
	if !ok {
		return res, nil
	}
	value, _, err := DecodeValue(def.Encoding, payload[1:], 0)
	if err != nil {
		// Keep the response so a waiter still resolves; the value stays empty
		return res, nil
	}
	res.Value = value
	return res, nil
}

// ParseResponse decodes a response payload with the default catalog
func ParseResponse(payload []byte) (RegisterResponse, error) {
	return DefaultCatalog.ParseResponse(payload)
}

// ParseTelemetryHeader decodes [telemetryId]([motor][registerId])*.
// A trailing odd byte is ignored.
func ParseTelemetryHeader(payload []byte) (TelemetryHeader, error) {
	if len(payload) == 0 {
		return TelemetryHeader{}, fmt.Errorf("%w: empty telemetry header", ErrShortPayload)
	}
	header := TelemetryHeader{
		TelemetryID: payload[0],
		Registers:   make([]RegisterRef, 0, (len(payload)-1)/2),
		Raw:         slices.Clone(payload),
	}
	for i := 1; i+1 < len(payload); i += 2 {
		header.Registers = append(header.Registers, RegisterRef{Motor: payload[i], Register: payload[i+1]})
	}
	return header, nil
}

// EncodeTelemetryHeader builds a telemetry header payload
func EncodeTelemetryHeader(telemetryID uint8, refs []RegisterRef) []byte {
	out := make([]byte, 0, 1+2*len(refs))
	out = append(out, telemetryID)
	for _, ref := range refs {
		out = append(out, ref.Motor, ref.Register)
	}
	return out
}

// EncodeTelemetrySchema builds the payload written to the telemetry register
// list: [count]([motor][registerId])*
func EncodeTelemetrySchema(refs []RegisterRef) ([]byte, error) {
	if len(refs) > 255 {
		return nil, fmt.Errorf("%w: %d telemetry registers", ErrPayloadTooLarge, len(refs))
	}
	out := make([]byte, 0, 1+2*len(refs))
	out = append(out, byte(len(refs)))
	for _, ref := range refs {
		out = append(out, ref.Motor, ref.Register)
	}
	return out, nil
}
