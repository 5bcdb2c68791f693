// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"math"
	"sort"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

// iirState is the per-node previous-sample memory an IIR filter needs
// across events; like History, this must live outside the result cache
// since cache slots are reset on every Reserve.
type iirState struct {
	hasPrev bool
	prevIn  float64
	prevOut float64
}

// NewIIRFilter builds a one-pole IIR filter node (§4.G "IIR filter"),
// either high-pass (`y[n] = α(y[n-1]+x[n]-x[n-1])`) or low-pass
// (`y[n] = y[n-1] + α(x[n]-y[n-1])`), with `RC = 1/(2π·cutoffHz)` and the
// matching α for the chosen mode.
func NewIIRFilter(name, dep, condition string, cutoffHz, dt float64, highPass bool, n int) *shapedNode {
	rc := 1 / (2 * math.Pi * cutoffHz)
	var alpha float64
	if highPass {
		alpha = rc / (rc + dt)
	} else {
		alpha = dt / (rc + dt)
	}
	st := &iirState{}
	node := newShaped(name, proc.KindArray1D, []string{dep}, condition, n, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		for i, x := range h {
			var y float64
			if highPass && !st.hasPrev {
				y = 0
			} else if highPass {
				y = alpha * (st.prevOut + x - st.prevIn)
			} else {
				y = st.prevOut + alpha*(x-st.prevOut)
			}
			out.Bins[i] = y
			st.prevIn, st.prevOut, st.hasPrev = x, y, true
		}
		out.FillCount = 1
		return nil
	})
	node.reset = func() { *st = iirState{} }
	return node
}

// localMinCols is the number of Table columns the local-minimum-table
// primitive emits: index, position, value.
const localMinCols = 3

// binToUser maps bin index i of an n-bin axis spanning [lo, hi] to the
// axis-scaled value at that bin's center, the same hist2user convention
// NewAxisInquiry's LowerX/UpperX fields describe.
func binToUser(i, n int, lo, hi float64) float64 {
	if n <= 0 {
		return lo
	}
	return lo + (hi-lo)*(float64(i)+0.5)/float64(n)
}

// NewLocalMinimumTable emits one Table row (index, position, value) for
// every bin that is smaller than all neighbours within radius and not NaN
// (§4.G "Local-minimum table"). Position is the input axis's scaled value
// at that bin, distinct from the raw bin index.
func NewLocalMinimumTable(name, dep, condition string, radius int, maxRows int) *shapedNode {
	return newShaped(name, proc.KindTable, []string{dep}, condition, localMinCols, maxRows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		in := ins[0]
		h := in.Bins
		row := 0
		for i, v := range h {
			if math.IsNaN(v) || row >= maxRows {
				continue
			}
			isMin := true
			for d := -radius; d <= radius && isMin; d++ {
				if d == 0 {
					continue
				}
				j := i + d
				if j < 0 || j >= len(h) {
					continue
				}
				if h[j] <= v {
					isMin = false
				}
			}
			if isMin {
				out.Bins[row*localMinCols+0] = float64(i)
				out.Bins[row*localMinCols+1] = binToUser(i, in.Columns, in.LowerX, in.UpperX)
				out.Bins[row*localMinCols+2] = v
				row++
			}
		}
		out.FillCount = row
		return nil
	})
}

// NewLocalMedianBackgroundSubtraction replaces each non-zero pixel within a
// fixed-size section by the median of the surrounding box, clipped to the
// section boundary (§4.G "Local-median background subtraction").
func NewLocalMedianBackgroundSubtraction(name, dep, condition string, cols, rows, sectionSize, boxRadius int) *shapedNode {
	return newShaped(name, proc.KindArray2D, []string{dep}, condition, cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		window := make([]float64, 0, (2*boxRadius+1)*(2*boxRadius+1))
		for r := 0; r < rows; r++ {
			secR0 := (r / sectionSize) * sectionSize
			secR1 := minInt(secR0+sectionSize, rows)
			for c := 0; c < cols; c++ {
				v := h[r*cols+c]
				if v == 0 {
					out.Bins[r*cols+c] = 0
					continue
				}
				secC0 := (c / sectionSize) * sectionSize
				secC1 := minInt(secC0+sectionSize, cols)
				window = window[:0]
				for rr := maxInt(r-boxRadius, secR0); rr < minInt(r+boxRadius+1, secR1); rr++ {
					for cc := maxInt(c-boxRadius, secC0); cc < minInt(c+boxRadius+1, secC1); cc++ {
						window = append(window, h[rr*cols+cc])
					}
				}
				out.Bins[r*cols+c] = median(window)
			}
		}
		out.FillCount = 1
		return nil
	})
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// peakTableCols is the fixed column order the peak-finder Table emits
// (§4.G "Peak finding").
var peakTableCols = []string{
	"centroidCol", "centroidRow", "intensity", "nbrOfPixels", "snr",
	"maxRadius", "minRadius", "index", "col", "row", "maxADU",
	"localBackground", "localBackgroundDeviation", "nbrOfBackgroundPixels",
}

// PeakFinderParams bundles the peak-finder's configuration so its
// constructor's signature stays readable.
type PeakFinderParams struct {
	Cols, Rows  int
	Threshold   float64
	BoxRadius   int
	ExcludeR2   float64 // radius² excluded from the background box
	MinBgPixels int
	SNRMin      float64
	GrowSNRMin  float64
	MaxRows     int
}

// NewPeakFinder implements the peak-finding primitive: traverse pixels
// above threshold, compute box background statistics excluding a central
// disk, accept the pixel as a peak seed if it's the local max in its box
// and has enough background samples and high enough SNR, then grow the
// peak by 8-connectivity against a looser per-neighbour SNR, and emit an
// intensity-weighted centroid row per peak.
func NewPeakFinder(name, dep, condition string, p PeakFinderParams) *shapedNode {
	return newShaped(name, proc.KindTable, []string{dep}, condition, len(peakTableCols), p.MaxRows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		cols, rows := p.Cols, p.Rows
		visited := make([]bool, len(h))
		row := 0
		for idx, v := range h {
			if row >= p.MaxRows || visited[idx] || v <= p.Threshold {
				continue
			}
			r, c := idx/cols, idx%cols
			if c-p.BoxRadius < 0 || c+p.BoxRadius >= cols || r-p.BoxRadius < 0 || r+p.BoxRadius >= rows {
				continue // too close to a section boundary
			}
			bgSum, bgSq, bgN := 0.0, 0.0, 0
			isLocalMax := true
			for dr := -p.BoxRadius; dr <= p.BoxRadius; dr++ {
				for dc := -p.BoxRadius; dc <= p.BoxRadius; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					nv := h[(r+dr)*cols+(c+dc)]
					if nv > v {
						isLocalMax = false
					}
					if float64(dr*dr+dc*dc) > p.ExcludeR2 {
						bgSum += nv
						bgSq += nv * nv
						bgN++
					}
				}
			}
			if !isLocalMax || bgN < p.MinBgPixels {
				continue
			}
			mean := bgSum / float64(bgN)
			variance := bgSq/float64(bgN) - mean*mean
			if variance < 0 {
				variance = 0
			}
			stdev := math.Sqrt(variance)
			snr := math.Inf(1)
			if stdev != 0 {
				snr = (v - mean) / stdev
			} else if v <= mean {
				continue // flat background, pixel isn't actually above it
			}
			if snr < p.SNRMin {
				continue
			}

			// Grow the cluster by 8-connectivity against a looser threshold.
			cluster := []int{idx}
			visited[idx] = true
			for q := 0; q < len(cluster); q++ {
				ci := cluster[q]
				cr, cc := ci/cols, ci%cols
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						if dr == 0 && dc == 0 {
							continue
						}
						nr, nc := cr+dr, cc+dc
						if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
							continue
						}
						if nr-r > p.BoxRadius || r-nr > p.BoxRadius || nc-c > p.BoxRadius || c-nc > p.BoxRadius {
							continue // stay inside the seed's box
						}
						ni := nr*cols + nc
						if visited[ni] {
							continue
						}
						nv := h[ni]
						if stdev > 0 && (nv-mean)/stdev >= p.GrowSNRMin {
							visited[ni] = true
							cluster = append(cluster, ni)
						}
					}
				}
			}

			intensity, wCol, wRow := 0.0, 0.0, 0.0
			maxADU := v
			for _, ci := range cluster {
				cr, cc := ci/cols, ci%cols
				pv := h[ci]
				intensity += pv
				wCol += pv * float64(cc)
				wRow += pv * float64(cr)
				if pv > maxADU {
					maxADU = pv
				}
			}
			centroidCol, centroidRow := float64(c), float64(r)
			if intensity != 0 {
				centroidCol, centroidRow = wCol/intensity, wRow/intensity
			}

			base := row * len(peakTableCols)
			out.Bins[base+0] = centroidCol
			out.Bins[base+1] = centroidRow
			out.Bins[base+2] = intensity
			out.Bins[base+3] = float64(len(cluster))
			out.Bins[base+4] = snr
			out.Bins[base+5] = math.Sqrt(p.ExcludeR2)
			out.Bins[base+6] = 0
			out.Bins[base+7] = float64(idx)
			out.Bins[base+8] = float64(c)
			out.Bins[base+9] = float64(r)
			out.Bins[base+10] = maxADU
			out.Bins[base+11] = mean
			out.Bins[base+12] = stdev
			out.Bins[base+13] = float64(bgN)
			row++
		}
		out.FillCount = row
		return nil
	})
}

// NewPeakVisualiser takes a peak-finder Table plus an image and draws a box
// and/or circle around each centroid in a copy of the image.
func NewPeakVisualiser(name string, deps []string, condition string, cols, rows int, boxHalfWidth int, drawBox, drawCircle bool, circleRadius float64) *shapedNode {
	return newShaped(name, proc.KindArray2D, deps, condition, cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		table, image := ins[0], ins[1]
		copy(out.Bins, image.Bins)
		marker := math.MaxFloat64 // visually distinct sentinel drawn into the copy
		n := table.FillCount
		for row := 0; row < n; row++ {
			base := row * table.Columns
			cc := int(table.Bins[base+0])
			cr := int(table.Bins[base+1])
			if drawBox {
				drawBoxOutline(out.Bins, cols, rows, cc, cr, boxHalfWidth, marker)
			}
			if drawCircle {
				drawCircleOutline(out.Bins, cols, rows, cc, cr, circleRadius, marker)
			}
		}
		out.FillCount = 1
		return nil
	})
}

func drawBoxOutline(bins []float64, cols, rows, cc, cr, half int, marker float64) {
	for d := -half; d <= half; d++ {
		setIf(bins, cols, rows, cc+d, cr-half, marker)
		setIf(bins, cols, rows, cc+d, cr+half, marker)
		setIf(bins, cols, rows, cc-half, cr+d, marker)
		setIf(bins, cols, rows, cc+half, cr+d, marker)
	}
}

func drawCircleOutline(bins []float64, cols, rows, cc, cr int, radius, marker float64) {
	steps := 360
	for i := 0; i < steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		x := cc + int(radius*math.Cos(theta))
		y := cr + int(radius*math.Sin(theta))
		setIf(bins, cols, rows, x, y, marker)
	}
}

func setIf(bins []float64, cols, rows, c, r int, v float64) {
	if c < 0 || c >= cols || r < 0 || r >= rows {
		return
	}
	bins[r*cols+c] = v
}
