// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records decoded telemetry to a stream of CBOR records
// and reads it back for replay.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// Record is one captured telemetry sample
type Record struct {
	Time        int64       `cbor:"1,keyasint"` // unix nanoseconds
	TelemetryID uint8       `cbor:"2,keyasint"`
	Registers   []byte      `cbor:"3,keyasint"` // (motor, register) pairs
	Values      [][]float64 `cbor:"4,keyasint"`
}

// NewRecord captures data received at ts
func NewRecord(data foclink.TelemetryData, ts time.Time) Record {
	rec := Record{
		Time:        ts.UnixNano(),
		TelemetryID: data.TelemetryID,
		Registers:   make([]byte, 0, 2*len(data.Registers)),
		Values:      make([][]float64, len(data.Values)),
	}
	for _, ref := range data.Registers {
		rec.Registers = append(rec.Registers, ref.Motor, ref.Register)
	}
	for i, v := range data.Values {
		rec.Values[i] = append([]float64(nil), v...)
	}
	return rec
}

// Timestamp returns the capture time
func (r Record) Timestamp() time.Time {
	return time.Unix(0, r.Time)
}

// TelemetryData rebuilds the decoded sample
func (r Record) TelemetryData() foclink.TelemetryData {
	data := foclink.TelemetryData{
		TelemetryID: r.TelemetryID,
		Registers:   make([]foclink.RegisterRef, 0, len(r.Registers)/2),
		Values:      make([]foclink.Value, len(r.Values)),
	}
	for i := 0; i+1 < len(r.Registers); i += 2 {
		data.Registers = append(data.Registers, foclink.RegisterRef{Motor: r.Registers[i], Register: r.Registers[i+1]})
	}
	for i, v := range r.Values {
		data.Values[i] = foclink.Value(v)
	}
	return data
}

var encMode = func() cbor.EncMode {
	// Floats are stored in the shortest width that round-trips exactly
	mode, err := cbor.EncOptions{ShortestFloat: cbor.ShortestFloat16}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encoder options: %v", err))
	}
	return mode
}()

// Writer appends records to a stream
type Writer struct {
	enc   *cbor.Encoder
	count int
}

// NewWriter creates a writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write records data received at ts
func (w *Writer) Write(data foclink.TelemetryData, ts time.Time) error {
	return w.WriteRecord(NewRecord(data, ts))
}

// WriteRecord appends rec
func (w *Writer) WriteRecord(rec Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("capture write: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	return w.count
}

// Reader reads records from a stream
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture read: %w", err)
	}
	return rec, nil
}
