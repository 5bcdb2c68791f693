// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

// RemapFunc converts a bin's physical coordinate on the source axis (e.g. a
// time-of-flight in ns) to the target axis's physical coordinate (e.g. a
// photon energy in eV). NewRemap1D samples it once per source bin edge at
// load time; it need not be monotonic-safe beyond what the caller supplies.
type RemapFunc func(x float64) float64

// NewRemap1D rebins a 1D histogram from one physical axis to another via
// area-preserving redistribution: each source bin's content is split across
// the destination bins its mapped edges overlap, weighted by the overlap
// fraction, so integrated intensity is conserved under a non-linear mapping
// such as time-of-flight to energy (§4.G "Energy remap").
func NewRemap1D(name, dep, condition string, srcLo, srcHi float64, srcN int, dstLo, dstHi float64, dstN int, mapFn RemapFunc) *shapedNode {
	srcBinW := (srcHi - srcLo) / float64(srcN)
	dstBinW := (dstHi - dstLo) / float64(dstN)

	// Precompute each source bin's mapped [lo, hi) edges on the destination
	// axis once, since mapFn and the bin geometry are both fixed at load
	// time.
	mappedLo := make([]float64, srcN)
	mappedHi := make([]float64, srcN)
	for i := 0; i < srcN; i++ {
		a := mapFn(srcLo + float64(i)*srcBinW)
		b := mapFn(srcLo + float64(i+1)*srcBinW)
		if a > b {
			a, b = b, a
		}
		mappedLo[i] = a
		mappedHi[i] = b
	}

	return newShaped(name, proc.KindArray1D, []string{dep}, condition, dstN, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0].Bins
		for i := 0; i < srcN && i < len(h); i++ {
			content := h[i]
			if content == 0 {
				continue
			}
			lo, hi := mappedLo[i], mappedHi[i]
			if hi <= dstLo || lo >= dstHi || hi <= lo {
				continue
			}
			firstBin := int((lo - dstLo) / dstBinW)
			lastBin := int((hi - dstLo) / dstBinW)
			if firstBin < 0 {
				firstBin = 0
			}
			if lastBin >= dstN {
				lastBin = dstN - 1
			}
			span := hi - lo
			for b := firstBin; b <= lastBin; b++ {
				binLo := dstLo + float64(b)*dstBinW
				binHi := binLo + dstBinW
				overlap := overlapLen(lo, hi, binLo, binHi)
				if overlap > 0 {
					out.Bins[b] += content * overlap / span
				}
			}
		}
		out.FillCount = 1
		return nil
	})
}

func overlapLen(aLo, aHi, bLo, bHi float64) float64 {
	lo := aLo
	if bLo > lo {
		lo = bLo
	}
	hi := aHi
	if bHi < hi {
		hi = bHi
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// NewTofToEnergyRemap is NewRemap1D specialised to the standard
// time-of-flight-to-kinetic-energy relation E = k/(t-t0)^2, the mapping
// cass_pp's energy-calibrated photoelectron spectra use (§4.G "Energy
// remap" example).
func NewTofToEnergyRemap(name, dep, condition string, srcLo, srcHi float64, srcN int, dstLo, dstHi float64, dstN int, t0, k float64) *shapedNode {
	return NewRemap1D(name, dep, condition, srcLo, srcHi, srcN, dstLo, dstHi, dstN, func(t float64) float64 {
		dt := t - t0
		if dt == 0 {
			return dstHi
		}
		return k / (dt * dt)
	})
}
