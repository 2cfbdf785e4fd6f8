// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import "time"

// Downsample thins batch for display. Stride keeps every n-th sample.
// MinMax splits the batch into buckets of n samples and keeps, per bucket,
// the minimum and maximum of the first trace (in time order) so spikes
// survive; every trace is sampled at those same indices.
func Downsample(batch RenderBatch, mode DownsampleMode, n int) RenderBatch {
	if n <= 1 || batch.Len() == 0 {
		return batch
	}
	switch mode {
	case DownsampleStride:
		return pick(batch, strideIndices(batch.Len(), n))
	case DownsampleMinMax:
		if len(batch.Traces) == 0 {
			return pick(batch, strideIndices(batch.Len(), n))
		}
		return pick(batch, minMaxIndices(batch.Traces[0], n))
	}
	return batch
}

func strideIndices(length, n int) []int {
	idx := make([]int, 0, (length+n-1)/n)
	for i := 0; i < length; i += n {
		idx = append(idx, i)
	}
	return idx
}

func minMaxIndices(values []float64, n int) []int {
	idx := make([]int, 0, 2*((len(values)+n-1)/n))
	for start := 0; start < len(values); start += n {
		end := min(start+n, len(values))
		lo, hi := start, start
		for i := start + 1; i < end; i++ {
			if values[i] < values[lo] {
				lo = i
			}
			if values[i] > values[hi] {
				hi = i
			}
		}
		switch {
		case lo == hi:
			idx = append(idx, lo)
		case lo < hi:
			idx = append(idx, lo, hi)
		default:
			idx = append(idx, hi, lo)
		}
	}
	return idx
}

func pick(batch RenderBatch, idx []int) RenderBatch {
	out := RenderBatch{
		Timestamps: make([]time.Time, len(idx)),
		Traces:     make([][]float64, len(batch.Traces)),
	}
	for i, j := range idx {
		out.Timestamps[i] = batch.Timestamps[j]
	}
	for t, trace := range batch.Traces {
		out.Traces[t] = make([]float64, len(idx))
		for i, j := range idx {
			out.Traces[t][i] = trace[j]
		}
	}
	return out
}
