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

func TestAveragingConvergesToConstantInput(t *testing.T) {
	node := NewAveraging("avg", "in", "", 2, 5, 0.5, false)
	in := proc.NewResult("in", proc.KindArray1D, 2, 0)
	in.Bins = []float64{4, 4}
	out := proc.NewResult("avg", proc.KindArray1D, 2, 0)
	ev := event.New(0)
	for i := 0; i < 10; i++ {
		if err := node.Process(ev, []*proc.Result{in}, out); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if math.Abs(out.Bins[0]-4) > 1e-6 {
		t.Fatalf("expected average to converge to 4, got %v", out.Bins[0])
	}
}

func TestCovarianceOfPerfectlyCorrelatedSeriesIsPositive(t *testing.T) {
	node := NewCovariance("cov", []string{"x", "y"}, "")
	x := proc.NewResult("x", proc.KindScalar, 0, 0)
	y := proc.NewResult("y", proc.KindScalar, 0, 0)
	out := proc.NewResult("cov", proc.KindScalar, 0, 0)
	ev := event.New(0)
	samples := []float64{1, 2, 3, 4, 5}
	for _, v := range samples {
		x.Value, y.Value = v, 2*v
		if err := node.Process(ev, []*proc.Result{x, y}, out); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if out.Value <= 0 {
		t.Fatalf("expected positive covariance for correlated series, got %v", out.Value)
	}
}

func TestWeightedCovarianceTracksPerBinRelationship(t *testing.T) {
	node := NewWeightedCovariance("wcov", []string{"h", "w"}, "", 2)
	h := proc.NewResult("h", proc.KindArray1D, 2, 0)
	w := proc.NewResult("w", proc.KindScalar, 0, 0)
	out := proc.NewResult("wcov", proc.KindArray1D, 2, 0)
	ev := event.New(0)
	for i := 1; i <= 5; i++ {
		h.Bins = []float64{float64(i), -float64(i)}
		w.Value = float64(i)
		if err := node.Process(ev, []*proc.Result{h, w}, out); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if out.Bins[0] <= 0 {
		t.Fatalf("bin 0 should covary positively with weight, got %v", out.Bins[0])
	}
	if out.Bins[1] >= 0 {
		t.Fatalf("bin 1 should covary negatively with weight, got %v", out.Bins[1])
	}
}

func TestStandardDeviationImageIsZeroForConstantInput(t *testing.T) {
	node := NewStandardDeviationImage("sd", "in", "", 2, 5, 0.5)
	in := proc.NewResult("in", proc.KindArray1D, 2, 0)
	in.Bins = []float64{3, 3}
	out := proc.NewResult("sd", proc.KindArray1D, 2, 0)
	ev := event.New(0)
	for i := 0; i < 5; i++ {
		if err := node.Process(ev, []*proc.Result{in}, out); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if math.Abs(out.Bins[0]) > 1e-6 {
		t.Fatalf("expected ~0 stddev for constant input, got %v", out.Bins[0])
	}
}
