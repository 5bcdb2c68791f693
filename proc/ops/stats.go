// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"gonum.org/v1/gonum/stat"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

// NewMinMax reduces an Array to a Scalar, taking the min (max=false) or the
// max (max=true) over all bins.
func NewMinMax(name, dep, condition string, max bool) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		if len(h) == 0 {
			out.FillCount = 1
			return nil
		}
		best := h[0]
		for _, v := range h[1:] {
			if (max && v > best) || (!max && v < best) {
				best = v
			}
		}
		out.Value = best
		out.IsTrue = best != 0
		out.FillCount = 1
		return nil
	})
}

// Reduction names the whole-array scalar reductions §4.G enumerates
// together: sum, mean, standard deviation, and variance.
type Reduction int

// The four supported whole-array reductions.
const (
	ReduceSum Reduction = iota
	ReduceMean
	ReduceStdDev
	ReduceVariance
)

// NewReduce implements Sum/Mean/StdDev/Variance over all bins of an Array,
// using gonum/stat for the population moments (population, not sample: the
// whole array is the full population for a single event's image).
func NewReduce(name, dep, condition string, red Reduction) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		if len(h) == 0 {
			out.FillCount = 1
			return nil
		}
		switch red {
		case ReduceSum:
			sum := 0.0
			for _, v := range h {
				sum += v
			}
			out.Value = sum
		case ReduceMean:
			out.Value = stat.Mean(h, nil)
		case ReduceStdDev:
			_, out.Value = stat.PopMeanStdDev(h, nil)
		case ReduceVariance:
			out.Value = stat.PopVariance(h, nil)
		}
		out.IsTrue = out.Value != 0
		out.FillCount = 1
		return nil
	})
}

// FracStat names the fractional-max 1D reductions: FWHM, width-at-fraction,
// and center-of-mass, each computed over a restricted bin range.
type FracStat int

// The three fractional-max reductions.
const (
	StatFWHM FracStat = iota
	StatWidthAtFraction
	StatCenterOfMass
)

// NewFracStat computes stat over H[lo:hi) (clipped to bounds). FWHM fixes
// the fraction at 0.5; width-at-fraction takes frac as configured.
func NewFracStat(name, dep, condition string, stat FracStat, lo, hi int, frac float64) *shapedNode {
	if stat == StatFWHM {
		frac = 0.5
	}
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		l, u := clipRange(lo, hi, 0, len(h))
		if u <= l {
			out.FillCount = 1
			return nil
		}
		window := h[l:u]
		switch stat {
		case StatCenterOfMass:
			sum, weighted := 0.0, 0.0
			for i, v := range window {
				sum += v
				weighted += v * float64(i)
			}
			if sum != 0 {
				out.Value = float64(l) + weighted/sum
			}
		default:
			max := window[0]
			for _, v := range window {
				if v > max {
					max = v
				}
			}
			thresh := max * frac
			first, last := -1, -1
			for i, v := range window {
				if v >= thresh {
					if first == -1 {
						first = i
					}
					last = i
				}
			}
			if first != -1 {
				out.Value = float64(last - first + 1)
			}
		}
		out.IsTrue = out.Value != 0
		out.FillCount = 1
		return nil
	})
}

// NewStepPositionAtFraction finds the first bin index (within the full
// axis) whose cumulative fraction of the total crosses frac, a common
// rising-edge timing extraction for step-like waveforms.
func NewStepPositionAtFraction(name, dep, condition string, frac float64) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		total := 0.0
		for _, v := range h {
			total += v
		}
		if total == 0 {
			out.FillCount = 1
			return nil
		}
		target := total * frac
		running := 0.0
		for i, v := range h {
			running += v
			if running >= target {
				out.Value = float64(i)
				break
			}
		}
		out.IsTrue = out.Value != 0
		out.FillCount = 1
		return nil
	})
}

// AxisField names the Axis-inquiry fields §4.G's "Axis inquiry" primitive
// can report.
type AxisField int

// The three reportable axis fields.
const (
	AxisNBins AxisField = iota
	AxisLower
	AxisUpper
)

// NewAxisInquiry reports one static field of an Array's axis metadata as a
// Scalar.
func NewAxisInquiry(name, dep, condition string, field AxisField, useY bool) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0]
		switch field {
		case AxisNBins:
			if useY {
				out.Value = float64(h.Rows)
			} else {
				out.Value = float64(h.Columns)
			}
		case AxisLower:
			if useY {
				out.Value = h.LowerY
			} else {
				out.Value = h.LowerX
			}
		case AxisUpper:
			if useY {
				out.Value = h.UpperY
			} else {
				out.Value = h.UpperX
			}
		}
		out.IsTrue = out.Value != 0
		out.FillCount = 1
		return nil
	})
}
