// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"math"
	"testing"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

func TestRemap1DConservesTotalIntensity(t *testing.T) {
	node := NewRemap1D("remap", "in", "", 0, 10, 10, 0, 100, 20, func(x float64) float64 {
		return x * x // a simple non-linear, monotonic-on-[0,10) mapping
	})
	in := proc.NewResult("in", proc.KindArray1D, 10, 0)
	for i := range in.Bins {
		in.Bins[i] = 1
	}
	out := proc.NewResult("remap", proc.KindArray1D, 20, 0)
	ev := event.New(0)
	if err := node.Process(ev, []*proc.Result{in}, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	srcTotal, dstTotal := 0.0, 0.0
	for _, v := range in.Bins {
		srcTotal += v
	}
	for _, v := range out.Bins {
		dstTotal += v
	}
	if math.Abs(srcTotal-dstTotal) > 1e-9 {
		t.Fatalf("total intensity not conserved: src=%v dst=%v", srcTotal, dstTotal)
	}
}

func TestTofToEnergyRemapMapsNearT0ToHighEnergy(t *testing.T) {
	node := NewTofToEnergyRemap("e", "in", "", 1, 11, 10, 0, 1000, 10, 0, 100)
	in := proc.NewResult("in", proc.KindArray1D, 10, 0)
	in.Bins[0] = 1 // all intensity at the earliest (highest-energy) bin
	out := proc.NewResult("e", proc.KindArray1D, 10, 0)
	ev := event.New(0)
	if err := node.Process(ev, []*proc.Result{in}, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	total := 0.0
	for _, v := range out.Bins {
		total += v
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("expected conserved unit intensity, got %v", total)
	}
}
