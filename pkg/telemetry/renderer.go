// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"fmt"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// Axis selects the y axis a trace is drawn against
type Axis string

// Axes
const (
	AxisLeft  Axis = "y"
	AxisRight Axis = "y2"
)

// Trace describes one plotted series: which register on which motor it
// follows and how it is labelled
type Trace struct {
	Name string
	Ref  foclink.RegisterRef
	Axis Axis
}

// TracesFor builds traces for registers on motor, named from catalog
func TracesFor(catalog *foclink.Catalog, motor uint8, registers []uint8) []Trace {
	if catalog == nil {
		catalog = foclink.DefaultCatalog
	}
	traces := make([]Trace, len(registers))
	for i, id := range registers {
		traces[i] = Trace{
			Name: fmt.Sprintf("m%d.%s", motor, catalog.Name(id)),
			Ref:  foclink.RegisterRef{Motor: motor, Register: id},
			Axis: AxisLeft,
		}
	}
	return traces
}

// TracesForRefs builds one trace per ref, which may span motors
func TracesForRefs(catalog *foclink.Catalog, refs []foclink.RegisterRef) []Trace {
	traces := make([]Trace, 0, len(refs))
	for _, ref := range refs {
		traces = append(traces, TracesFor(catalog, ref.Motor, []uint8{ref.Register})...)
	}
	return traces
}

// Refs returns the register refs of traces in order
func Refs(traces []Trace) []foclink.RegisterRef {
	refs := make([]foclink.RegisterRef, len(traces))
	for i, t := range traces {
		refs[i] = t.Ref
	}
	return refs
}

// Renderer consumes drained batches. Render is called from the pipeline's
// render goroutine.
type Renderer interface {
	Render(batch RenderBatch)
}

// TraceSetter is implemented by renderers that need to know when the
// active trace set changes
type TraceSetter interface {
	SetTraces(traces []Trace)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(batch RenderBatch)

// Render calls f(batch)
func (f RendererFunc) Render(batch RenderBatch) {
	f(batch)
}
