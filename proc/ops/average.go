// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

// averageState is the running-average memory an Averaging node keeps across
// events: the cumulative mean (CMA) plus the sample count that decides the
// switch-over to an exponential moving average once nAlpha samples have been
// seen.
type averageState struct {
	mean  []float64
	count int64
}

// NewAveraging implements §4.G "Averaging": a cumulative moving average
// (CMA) for the first nAlpha events, then an exponential moving average
// (EMA) with weight alpha thereafter — the standard CASS transition so a
// long-running average doesn't keep diluting new samples forever. When
// squareAverage is true, each sample is squared before being folded in
// (the "square-average" variant used upstream of a standard-deviation
// image).
func NewAveraging(name, dep, condition string, n int, nAlpha int64, alpha float64, squareAverage bool) *shapedNode {
	st := &averageState{mean: make([]float64, n)}
	node := newShaped(name, proc.KindArray1D, []string{dep}, condition, n, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		st.count++
		w := alpha
		if st.count <= nAlpha {
			w = 1 / float64(st.count)
		}
		for i, v := range h {
			if squareAverage {
				v *= v
			}
			st.mean[i] += w * (v - st.mean[i])
		}
		copy(out.Bins, st.mean)
		out.FillCount = 1
		return nil
	})
	node.reset = func() {
		st.count = 0
		for i := range st.mean {
			st.mean[i] = 0
		}
	}
	return node
}

// covarianceState holds the running 2x2 covariance matrix a Covariance node
// accumulates across events via rank-1 Welford-style updates, plus the
// running means needed to form each update's deviation vector.
type covarianceState struct {
	count int64
	meanX float64
	meanY float64
	sym   *mat.SymDense
}

// NewCovariance computes the running covariance of two scalar streams,
// accumulated into a 2x2 gonum SymDense the same way a running covariance
// matrix is built one rank-1 update at a time (§4.G "Covariance (self)").
// Element (0,1) (equivalently (1,0)) is the reported scalar.
func NewCovariance(name string, deps []string, condition string) *shapedNode {
	st := &covarianceState{sym: mat.NewSymDense(2, nil)}
	node := newShaped(name, proc.KindScalar, deps, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		x, y := ins[0].Value, ins[1].Value
		st.count++
		dx := x - st.meanX
		st.meanX += dx / float64(st.count)
		dy := y - st.meanY
		st.meanY += dy / float64(st.count)

		coMomentXY := st.sym.At(0, 1) + dx*(y-st.meanY)
		coMomentXX := st.sym.At(0, 0) + dx*(x-st.meanX)
		coMomentYY := st.sym.At(1, 1) + dy*(y-st.meanY)
		st.sym.SetSym(0, 0, coMomentXX)
		st.sym.SetSym(0, 1, coMomentXY)
		st.sym.SetSym(1, 1, coMomentYY)

		if st.count > 1 {
			out.Value = st.sym.At(0, 1) / float64(st.count-1)
		}
		out.IsTrue = out.Value != 0
		out.FillCount = 1
		return nil
	})
	node.reset = func() {
		st.count, st.meanX, st.meanY = 0, 0, 0
		st.sym = mat.NewSymDense(2, nil)
	}
	return node
}

// weightedCovarianceState is the per-bin accumulator set NewWeightedCovariance
// keeps for the "Covariance weighted by a scalar" variant: one running
// covariance per bin between that bin's value and the scalar weight.
type weightedCovarianceState struct {
	count    int64
	meanBin  []float64
	meanW    float64
	coMoment []float64
}

// NewWeightedCovariance computes, per bin i, the running covariance between
// H[i] and a scalar weight sourced from a second dependency (§4.G
// "Covariance weighted by a scalar").
func NewWeightedCovariance(name string, deps []string, condition string, n int) *shapedNode {
	st := &weightedCovarianceState{meanBin: make([]float64, n), coMoment: make([]float64, n)}
	node := newShaped(name, proc.KindArray1D, deps, condition, n, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h, w := ins[0].Bins, ins[1].Value
		st.count++
		dw := w - st.meanW
		st.meanW += dw / float64(st.count)
		for i, v := range h {
			dBin := v - st.meanBin[i]
			st.meanBin[i] += dBin / float64(st.count)
			st.coMoment[i] += dBin * (w - st.meanW)
			if st.count > 1 {
				out.Bins[i] = st.coMoment[i] / float64(st.count-1)
			}
		}
		out.FillCount = 1
		return nil
	})
	node.reset = func() {
		st.count, st.meanW = 0, 0
		for i := range st.meanBin {
			st.meanBin[i], st.coMoment[i] = 0, 0
		}
	}
	return node
}

// NewStandardDeviationImage folds NewAveraging's square-average variant
// together with a plain average to produce sqrt(E[x^2]-E[x]^2) per bin,
// the running standard-deviation image §4.G lists alongside Averaging.
func NewStandardDeviationImage(name, dep, condition string, n int, nAlpha int64, alpha float64) *shapedNode {
	mean := &averageState{mean: make([]float64, n)}
	sq := &averageState{mean: make([]float64, n)}
	node := newShaped(name, proc.KindArray1D, []string{dep}, condition, n, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		mean.count++
		sq.count++
		w := alpha
		if mean.count <= nAlpha {
			w = 1 / float64(mean.count)
		}
		for i, v := range h {
			mean.mean[i] += w * (v - mean.mean[i])
			sq.mean[i] += w * (v*v - sq.mean[i])
			variance := sq.mean[i] - mean.mean[i]*mean.mean[i]
			if variance < 0 {
				variance = 0
			}
			out.Bins[i] = math.Sqrt(variance)
		}
		out.FillCount = 1
		return nil
	})
	node.reset = func() {
		mean.count, sq.count = 0, 0
		for i := range mean.mean {
			mean.mean[i], sq.mean[i] = 0, 0
		}
	}
	return node
}
