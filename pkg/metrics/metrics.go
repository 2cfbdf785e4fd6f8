// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics tracks ingest and render rates for the telemetry pipeline.
//
// Rates are smoothed with an exponentially weighted moving average
// (alpha 0.2) seeded by the first measurement, so there is no ramp-up bias.
package metrics

import (
	"sync"
	"time"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// Alpha is the EWMA smoothing factor
const Alpha = 0.2

// minInterval floors the measured interval between two events
const minInterval = time.Millisecond

// Snapshot is a point-in-time copy of the metrics
type Snapshot struct {
	IngestSamplesPerSec float64
	RenderFPS           float64
	ParseErrors         uint64 // malformed command lines
	CRCErrors           uint64
	FramingErrors       uint64
	SchemaMisses        uint64
	DroppedSamples      uint64
	DropEvents          uint64
	BufferUtilization   float64
	LastUpdate          time.Time
}

// EWMA is an exponentially weighted moving average seeded by its first sample
type EWMA struct {
	value  float64
	seeded bool
}

// Add folds sample into the average and returns the new value
func (e *EWMA) Add(sample float64) float64 {
	if !e.seeded {
		e.value = sample
		e.seeded = true
		return e.value
	}
	e.value = e.value*(1-Alpha) + sample*Alpha
	return e.value
}

// Value returns the current average, 0 before the first sample
func (e *EWMA) Value() float64 {
	return e.value
}

// Metrics aggregates pipeline rates and counters. Safe for concurrent use:
// ingestion and the render loop run on different goroutines.
type Metrics struct {
	mu  sync.Mutex
	now func() time.Time

	ingest     EWMA
	render     EWMA
	lastIngest time.Time
	lastRender time.Time

	parseErrors    uint64
	link           linkCounters // last statistics seen, for deltas
	linkStart      time.Time
	crcErrors      uint64
	framingErrors  uint64
	schemaMisses   uint64
	droppedSamples uint64
	dropEvents     uint64
	utilization    float64
}

// New creates a metrics tracker using the wall clock
func New() *Metrics {
	return NewWithClock(time.Now)
}

// NewWithClock creates a metrics tracker reading time from now
func NewWithClock(now func() time.Time) *Metrics {
	t := now()
	return &Metrics{
		now:        now,
		lastIngest: t,
		lastRender: t,
	}
}

// TrackIngest records that samples arrived since the previous call
func (m *Metrics) TrackIngest(samples int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dt := max(minInterval, now.Sub(m.lastIngest))
	m.ingest.Add(float64(samples) / dt.Seconds())
	m.lastIngest = now
}

// TrackRender records one render frame
func (m *Metrics) TrackRender() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dt := max(minInterval, now.Sub(m.lastRender))
	m.render.Add(1 / dt.Seconds())
	m.lastRender = now
}

// TrackParseError counts one malformed command line
func (m *Metrics) TrackParseError() {
	m.mu.Lock()
	m.parseErrors++
	m.mu.Unlock()
}

// UpdateBufferStats replaces the buffer counters with the latest cumulative values
func (m *Metrics) UpdateBufferStats(droppedSamples, dropEvents uint64, utilization float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedSamples = droppedSamples
	m.dropEvents = dropEvents
	m.utilization = utilization
}

type linkCounters struct {
	crc, framing, schema uint64
}

// UpdateLinkStats adds what a session's link statistics counted since the
// previous call. Statistics restarted by a reconnect or reset are detected
// by their start time, so the totals never go backwards.
func (m *Metrics) UpdateLinkStats(s foclink.Statistics) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.StartTime.Equal(m.linkStart) {
		m.link = linkCounters{}
		m.linkStart = s.StartTime
	}
	m.crcErrors += since(&m.link.crc, s.CRCErrors)
	m.framingErrors += since(&m.link.framing, s.FramingErrors)
	m.schemaMisses += since(&m.link.schema, s.SchemaMisses)
}

// since returns how far cur moved past *last and records cur
func since(last *uint64, cur uint64) uint64 {
	d := cur
	if cur >= *last {
		d = cur - *last
	}
	*last = cur
	return d
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		IngestSamplesPerSec: m.ingest.Value(),
		RenderFPS:           m.render.Value(),
		ParseErrors:         m.parseErrors,
		CRCErrors:           m.crcErrors,
		FramingErrors:       m.framingErrors,
		SchemaMisses:        m.schemaMisses,
		DroppedSamples:      m.droppedSamples,
		DropEvents:          m.dropEvents,
		BufferUtilization:   m.utilization,
		LastUpdate:          m.now(),
	}
}
