// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"sync"
	"time"
)

// Series is the render-side rolling window: render batches are appended and
// the oldest points fall off once MaxPoints is exceeded.
type Series struct {
	mu         sync.Mutex
	maxPoints  int
	traces     []Trace
	timestamps []time.Time
	values     [][]float64
}

// NewSeries creates a window of at most maxPoints points per trace
func NewSeries(traces []Trace, maxPoints int) *Series {
	s := &Series{maxPoints: max(1, maxPoints)}
	s.SetTraces(traces)
	return s
}

// SetTraces clears the window and re-shapes it for traces
func (s *Series) SetTraces(traces []Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append([]Trace(nil), traces...)
	s.timestamps = nil
	s.values = make([][]float64, len(traces))
}

// Render appends batch to the window. Traces beyond the window's trace count
// are ignored.
func (s *Series) Render(batch RenderBatch) {
	if batch.Len() == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timestamps = append(s.timestamps, batch.Timestamps...)
	for t := range s.values {
		if t < len(batch.Traces) {
			s.values[t] = append(s.values[t], batch.Traces[t]...)
		} else {
			s.values[t] = append(s.values[t], make([]float64, batch.Len())...)
		}
	}

	if over := len(s.timestamps) - s.maxPoints; over > 0 {
		s.timestamps = s.timestamps[:copy(s.timestamps, s.timestamps[over:])]
		for t, v := range s.values {
			s.values[t] = v[:copy(v, v[over:])]
		}
	}
}

// Len returns the number of points in the window
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timestamps)
}

// Traces returns the trace definitions
func (s *Series) Traces() []Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Trace(nil), s.traces...)
}

// Values returns a copy of trace t's points, oldest first
func (s *Series) Values(t int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t < 0 || t >= len(s.values) {
		return nil
	}
	return append([]float64(nil), s.values[t]...)
}

// Last returns the newest value of every trace; ok is false when empty
func (s *Series) Last() (values []float64, ts time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.timestamps)
	if n == 0 {
		return nil, time.Time{}, false
	}
	values = make([]float64, len(s.values))
	for t, v := range s.values {
		values[t] = v[n-1]
	}
	return values, s.timestamps[n-1], true
}

// Range returns the min and max over all traces; ok is false when empty
func (s *Series) Range() (lo, hi float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.values {
		for _, x := range v {
			if !ok {
				lo, hi, ok = x, x, true
				continue
			}
			lo = min(lo, x)
			hi = max(hi, x)
		}
	}
	return lo, hi, ok
}
