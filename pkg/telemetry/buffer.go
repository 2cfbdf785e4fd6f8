// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SampleBatch is a run of samples to ingest. Values is indexed
// [trace][sample]; a missing trace or sample reads as 0.
type SampleBatch struct {
	Timestamps []time.Time
	Values     [][]float64
}

// RenderBatch is a run of samples drained for rendering, indexed like
// SampleBatch. Every trace has len(Timestamps) samples.
type RenderBatch struct {
	Timestamps []time.Time
	Traces     [][]float64
}

// Len returns the number of samples in the batch
func (b RenderBatch) Len() int {
	return len(b.Timestamps)
}

// BufferOptions configures a BufferManager
type BufferOptions struct {
	Capacity      int
	HighWatermark float64 // eviction starts above Capacity*HighWatermark
	LowWatermark  float64 // and trims down to floor(Capacity*LowWatermark)
}

// Validate checks capacity and watermark ordering
func (o BufferOptions) Validate() error {
	if o.Capacity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, o.Capacity)
	}
	if !(o.LowWatermark > 0 && o.LowWatermark < o.HighWatermark && o.HighWatermark <= 1) {
		return fmt.Errorf("%w: low %.2f high %.2f", ErrInvalidWatermarks, o.LowWatermark, o.HighWatermark)
	}
	return nil
}

// BufferStats is a snapshot of buffer occupancy and shedding counters
type BufferStats struct {
	Utilization    float64
	DroppedSamples uint64
	DropEvents     uint64
	Size           int
	Capacity       int
}

// BufferManager is a bounded per-trace sample FIFO with hysteresis eviction.
// The timestamp column and every trace column always have the same length.
type BufferManager struct {
	mu         sync.Mutex
	opts       BufferOptions
	timestamps []time.Time
	buffers    [][]float64

	droppedSamples uint64
	dropEvents     uint64
}

// NewBufferManager creates a buffer holding traceCount traces
func NewBufferManager(traceCount int, opts BufferOptions) (*BufferManager, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	b := &BufferManager{opts: opts}
	b.reset(traceCount)
	return b, nil
}

func (b *BufferManager) reset(traceCount int) {
	b.buffers = make([][]float64, traceCount)
	for i := range b.buffers {
		b.buffers[i] = make([]float64, 0, b.opts.Capacity)
	}
	b.timestamps = make([]time.Time, 0, b.opts.Capacity)
}

// SetTraceCount discards all buffered samples and re-shapes the buffer
func (b *BufferManager) SetTraceCount(traceCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset(traceCount)
}

// TraceCount returns the number of trace columns
func (b *BufferManager) TraceCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers)
}

// PushBatch appends batch and then enforces capacity
func (b *BufferManager) PushBatch(batch SampleBatch) {
	if len(batch.Timestamps) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for idx, ts := range batch.Timestamps {
		b.timestamps = append(b.timestamps, ts)
		for t := range b.buffers {
			b.buffers[t] = append(b.buffers[t], sampleAt(batch.Values, t, idx))
		}
	}
	b.enforceCapacity()
}

func sampleAt(values [][]float64, trace, idx int) float64 {
	if trace >= len(values) || idx >= len(values[trace]) {
		return 0
	}
	v := values[trace][idx]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (b *BufferManager) enforceCapacity() {
	current := len(b.timestamps)
	if float64(current) <= float64(b.opts.Capacity)*b.opts.HighWatermark {
		return
	}
	target := int(math.Floor(float64(b.opts.Capacity) * b.opts.LowWatermark))
	remove := current - target
	if remove <= 0 {
		return
	}
	b.dropEvents++
	b.droppedSamples += uint64(remove)
	b.trimFront(remove)
}

// trimFront removes n samples from the front of every column in place
func (b *BufferManager) trimFront(n int) {
	b.timestamps = b.timestamps[:copy(b.timestamps, b.timestamps[n:])]
	for t, buf := range b.buffers {
		b.buffers[t] = buf[:copy(buf, buf[n:])]
	}
}

// DrainForRender removes up to maxSamples from the front of every column
// and returns them
func (b *BufferManager) DrainForRender(maxSamples int) RenderBatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	take := min(maxSamples, len(b.timestamps))
	if take <= 0 {
		return RenderBatch{}
	}

	batch := RenderBatch{
		Timestamps: append([]time.Time(nil), b.timestamps[:take]...),
		Traces:     make([][]float64, len(b.buffers)),
	}
	for t, buf := range b.buffers {
		batch.Traces[t] = append([]float64(nil), buf[:take]...)
	}
	b.trimFront(take)
	return batch
}

// Stats returns occupancy and cumulative drop counters
func (b *BufferManager) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.timestamps)
	return BufferStats{
		Utilization:    min(1, float64(size)/float64(b.opts.Capacity)),
		DroppedSamples: b.droppedSamples,
		DropEvents:     b.dropEvents,
		Size:           size,
		Capacity:       b.opts.Capacity,
	}
}
