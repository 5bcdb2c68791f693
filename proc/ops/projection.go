// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

func clipRange(lo, hi, axisLo, axisHi int) (int, int) {
	if lo < axisLo {
		lo = axisLo
	}
	if hi > axisHi {
		hi = axisHi
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Axis selects which 2D axis a projection sums across.
type Axis int

// The two projectable axes of an Array2D.
const (
	AxisX Axis = iota
	AxisY
)

// NewAxisProjection sums a 2D result along axis over [restrictLo,
// restrictHi) of the other axis (clipped to bounds), producing a 1D result
// whose bin count equals the full length of the projection axis.
func NewAxisProjection(name, dep, condition string, axis Axis, restrictLo, restrictHi int, cols, rows int) *shapedNode {
	outLen := cols
	if axis == AxisY {
		outLen = rows
	}
	return newShaped(name, proc.KindArray1D, []string{dep}, condition, outLen, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0]
		lo, hi := restrictLo, restrictHi
		if axis == AxisX {
			lo, hi = clipRange(lo, hi, 0, rows)
			for c := 0; c < cols; c++ {
				sum := 0.0
				for r := lo; r < hi; r++ {
					sum += h.Bins[r*cols+c]
				}
				out.Bins[c] = sum
			}
		} else {
			lo, hi = clipRange(lo, hi, 0, cols)
			for r := 0; r < rows; r++ {
				sum := 0.0
				for c := lo; c < hi; c++ {
					sum += h.Bins[r*cols+c]
				}
				out.Bins[r] = sum
			}
		}
		out.FillCount = 1
		return nil
	})
}

// NewWeightedAxisProjection sums only cells not equal to exclude, then
// divides by the count of cells summed (the "weighted ... with exclusion
// value" primitive).
func NewWeightedAxisProjection(name, dep, condition string, axis Axis, exclude float64, cols, rows int) *shapedNode {
	outLen := cols
	if axis == AxisY {
		outLen = rows
	}
	return newShaped(name, proc.KindArray1D, []string{dep}, condition, outLen, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0]
		if axis == AxisX {
			for c := 0; c < cols; c++ {
				sum, n := 0.0, 0
				for r := 0; r < rows; r++ {
					v := h.Bins[r*cols+c]
					if v != exclude {
						sum += v
						n++
					}
				}
				if n > 0 {
					out.Bins[c] = sum / float64(n)
				}
			}
		} else {
			for r := 0; r < rows; r++ {
				sum, n := 0.0, 0
				for c := 0; c < cols; c++ {
					v := h.Bins[r*cols+c]
					if v != exclude {
						sum += v
						n++
					}
				}
				if n > 0 {
					out.Bins[r] = sum / float64(n)
				}
			}
		}
		out.FillCount = 1
		return nil
	})
}

// NewRangeIntegral sums a 1D result's bins over [lo, hi), clipped to the
// axis bounds.
func NewRangeIntegral(name, dep, condition string, lo, hi int) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0]
		l, u := clipRange(lo, hi, 0, len(h.Bins))
		sum := 0.0
		for i := l; i < u; i++ {
			sum += h.Bins[i]
		}
		out.Value = sum
		out.IsTrue = sum != 0
		out.FillCount = 1
		return nil
	})
}

// historyState holds the ring of recent scalar values behind a History
// node. The result cache's own slots are reset on every Reserve, so the
// ring itself must live in node-local state rather than in the published
// result; Process copies the whole ring out on every event.
type historyState struct {
	ring []float64
	next int
}

// NewHistory rotates new values from dep (any kind, reduced via sumOf) into
// a fixed-length ring of length n.
func NewHistory(name, dep, condition string, n int) *shapedNode {
	st := &historyState{ring: make([]float64, n)}
	node := newShaped(name, proc.KindArray1D, []string{dep}, condition, n, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		st.ring[st.next] = sumOf(ins[0])
		st.next = (st.next + 1) % n
		copy(out.Bins, st.ring)
		out.FillCount = 1
		return nil
	})
	node.reset = func() {
		for i := range st.ring {
			st.ring[i] = 0
		}
		st.next = 0
	}
	return node
}

// NewScatter2D fills (x, y) from two Scalars with weight 1, tracking
// over/underflow separately from the 2D grid.
func NewScatter2D(name string, deps []string, condition string, cols, rows int, xLo, xHi, yLo, yHi float64) *shapedNode {
	return newShaped(name, proc.KindArray2D, deps, condition, cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		x, y := ins[0].Value, ins[1].Value
		if x < xLo || x >= xHi || y < yLo || y >= yHi {
			out.Overflow++
			out.FillCount = 1
			return nil
		}
		c := int((x - xLo) / (xHi - xLo) * float64(cols))
		r := int((y - yLo) / (yHi - yLo) * float64(rows))
		if c >= cols {
			c = cols - 1
		}
		if r >= rows {
			r = rows - 1
		}
		out.Bins[r*cols+c]++
		out.FillCount = 1
		return nil
	})
}

// NewCross computes the outer product R[j*N+i] = H1[i]*H2[j].
func NewCross(name string, deps []string, condition string) *shapedNode {
	return newShaped(name, proc.KindArray2D, deps, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h1, h2 := ins[0], ins[1]
		n, m := len(h1.Bins), len(h2.Bins)
		if len(out.Bins) != n*m {
			out.Bins = make([]float64, n*m)
			out.Columns, out.Rows = n, m
		}
		for j := 0; j < m; j++ {
			for i := 0; i < n; i++ {
				out.Bins[j*n+i] = h1.Bins[i] * h2.Bins[j]
			}
		}
		out.FillCount = 1
		return nil
	})
}

// NewPixelWeighted1D bins x (from a scalar) with weight w (from a second
// scalar), accumulating both the weighted sum and the fill count in two
// parallel 1D arrays addressed by the same fill(x) bin index.
func NewPixelWeighted1D(name string, deps []string, condition string, n int, lo, hi float64) *shapedNode {
	node := newShaped(name, proc.KindArray1D, deps, condition, 2*n, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		x, w := ins[0].Value, ins[1].Value
		if x < lo || x >= hi {
			out.Overflow++
			out.FillCount = 1
			return nil
		}
		bin := int((x - lo) / (hi - lo) * float64(n))
		if bin >= n {
			bin = n - 1
		}
		out.Bins[bin] += w
		out.Bins[n+bin]++
		out.FillCount = 1
		return nil
	})
	return node
}

// NewSlice2D extracts a user-specified rectangular subset of a 2D result.
func NewSlice2D(name, dep, condition string, colLo, colHi, rowLo, rowHi, srcCols int) *shapedNode {
	outCols, outRows := colHi-colLo, rowHi-rowLo
	return newShaped(name, proc.KindArray2D, []string{dep}, condition, outCols, outRows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0]
		for r := 0; r < outRows; r++ {
			for c := 0; c < outCols; c++ {
				out.Bins[r*outCols+c] = h.Bins[(r+rowLo)*srcCols+(c+colLo)]
			}
		}
		out.FillCount = 1
		return nil
	})
}
