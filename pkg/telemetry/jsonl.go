// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// JSONLRenderer writes every rendered sample as one JSON object per line
type JSONLRenderer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	traces []Trace
	err    error
}

type jsonlRecord struct {
	TS     string             `json:"ts"`
	Values map[string]float64 `json:"values"`
}

// NewJSONLRenderer creates a renderer writing to w, labelling values by
// trace name
func NewJSONLRenderer(w io.Writer, traces []Trace) *JSONLRenderer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLRenderer{
		enc:    enc,
		traces: append([]Trace(nil), traces...),
	}
}

// SetTraces updates the trace labels
func (j *JSONLRenderer) SetTraces(traces []Trace) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.traces = append([]Trace(nil), traces...)
}

// Render writes batch. The first write error is kept and later batches are
// dropped; see Err.
func (j *JSONLRenderer) Render(batch RenderBatch) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}

	for i, ts := range batch.Timestamps {
		rec := jsonlRecord{
			TS:     ts.UTC().Format(time.RFC3339Nano),
			Values: make(map[string]float64, len(j.traces)),
		}
		for t, trace := range j.traces {
			if t < len(batch.Traces) && i < len(batch.Traces[t]) {
				rec.Values[trace.Name] = batch.Traces[t][i]
			}
		}
		if err := j.enc.Encode(rec); err != nil {
			j.err = err
			return
		}
	}
}

// Err returns the first write error
func (j *JSONLRenderer) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
