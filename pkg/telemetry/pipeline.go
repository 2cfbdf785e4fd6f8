// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry turns a decoded telemetry feed into render-ready series.
//
// Samples are ingested as they arrive into a bounded BufferManager and
// drained by a fixed-interval render loop. When rendering falls behind, the
// buffer sheds the oldest samples in bulk instead of growing or blocking.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/foclink/pkg/foclink"
	"github.com/Thermoquad/foclink/pkg/metrics"
)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithMetrics shares an existing metrics tracker
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// OnMetrics registers a hook receiving a snapshot after every ingest and
// every non-empty render tick. It runs on the calling goroutine and must
// not block.
func OnMetrics(fn func(metrics.Snapshot)) Option {
	return func(p *Pipeline) {
		p.onMetrics = fn
	}
}

// Pipeline decouples bursty ingestion from a fixed-cadence render loop
// through a BufferManager
type Pipeline struct {
	cfg       Config
	buffer    *BufferManager
	metrics   *metrics.Metrics
	renderer  Renderer
	onMetrics func(metrics.Snapshot)

	mu     sync.Mutex
	traces []Trace
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPipeline creates a pipeline for traces rendering into renderer
func NewPipeline(cfg Config, traces []Trace, renderer Renderer, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buffer, err := NewBufferManager(len(traces), cfg.BufferOptions())
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		buffer:   buffer,
		metrics:  metrics.New(),
		renderer: renderer,
		traces:   append([]Trace(nil), traces...),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Start runs the render loop until Stop is called or ctx is done
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running() {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Stop halts the render loop and waits for it to exit. Buffered samples are
// kept.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the render loop is active
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running()
}

func (p *Pipeline) running() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.RenderInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick drains up to MaxDrainPerTick samples and renders them. Returns false
// when there was nothing to render.
func (p *Pipeline) Tick() bool {
	drained := p.buffer.DrainForRender(p.cfg.MaxDrainPerTick)
	if drained.Len() == 0 {
		return false
	}

	if p.renderer != nil {
		p.renderer.Render(Downsample(drained, p.cfg.DownsampleMode, p.cfg.StrideN))
	}
	stats := p.buffer.Stats()
	p.metrics.UpdateBufferStats(stats.DroppedSamples, stats.DropEvents, stats.Utilization)
	p.metrics.TrackRender()
	p.emitMetrics()
	return true
}

// SetTraces replaces the active trace set. Buffered samples for the old set
// are discarded.
func (p *Pipeline) SetTraces(traces []Trace) {
	p.mu.Lock()
	p.traces = append([]Trace(nil), traces...)
	p.buffer.SetTraceCount(len(traces))
	p.mu.Unlock()

	if ts, ok := p.renderer.(TraceSetter); ok {
		ts.SetTraces(traces)
	}
}

// Traces returns the active trace set
func (p *Pipeline) Traces() []Trace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Trace(nil), p.traces...)
}

// Ingest buffers one sample. values is padded with zeros or truncated to
// the active trace count.
func (p *Pipeline) Ingest(values []float64, ts time.Time) {
	p.mu.Lock()
	n := len(p.traces)
	p.mu.Unlock()

	batch := SampleBatch{
		Timestamps: []time.Time{ts},
		Values:     make([][]float64, n),
	}
	for i := range batch.Values {
		var v float64
		if i < len(values) {
			v = values[i]
		}
		batch.Values[i] = []float64{v}
	}

	p.buffer.PushBatch(batch)
	p.metrics.TrackIngest(1)
	p.emitMetrics()
}

// IngestTelemetry maps a decoded telemetry frame onto the active traces and
// ingests it
func (p *Pipeline) IngestTelemetry(data foclink.TelemetryData, ts time.Time) {
	p.Ingest(data.Sample(Refs(p.Traces())), ts)
}

// TrackParseError counts a malformed command line
func (p *Pipeline) TrackParseError() {
	p.metrics.TrackParseError()
}

// UpdateLinkStats copies link integrity counters into the metrics
func (p *Pipeline) UpdateLinkStats(s foclink.Statistics) {
	p.metrics.UpdateLinkStats(s)
}

// Metrics returns the current metrics snapshot
func (p *Pipeline) Metrics() metrics.Snapshot {
	return p.metrics.Snapshot()
}

// BufferStats returns the buffer occupancy
func (p *Pipeline) BufferStats() BufferStats {
	return p.buffer.Stats()
}

func (p *Pipeline) emitMetrics() {
	if p.onMetrics != nil {
		p.onMetrics(p.metrics.Snapshot())
	}
}
