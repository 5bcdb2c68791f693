// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"errors"
	"math"
	"testing"

	"github.com/lcls-lab/shotpipe/config"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

func TestNewFromConfigBuildsBinary(t *testing.T) {
	n := config.Node{
		Kind:         "Binary",
		Dependencies: []string{"a", "b"},
		Params:       map[string]interface{}{"op": "+"},
	}
	node, err := NewFromConfig("sum", n)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if node.Name() != "sum" {
		t.Fatalf("got name %q, want %q", node.Name(), "sum")
	}
	if node.OutputKind() != proc.KindScalar {
		t.Fatalf("got kind %v, want Scalar", node.OutputKind())
	}
}

func TestNewFromConfigBuildsHistoryWithDep1(t *testing.T) {
	n := config.Node{
		Kind:         "History",
		Dependencies: []string{"x"},
		Params:       map[string]interface{}{"n": 8},
	}
	node, err := NewFromConfig("hist", n)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	shaped, ok := node.(interface{ Shape() (int, int) })
	if !ok {
		t.Fatalf("expected History to report a shape")
	}
	cols, _ := shaped.Shape()
	if cols != 8 {
		t.Fatalf("got cols %d, want 8", cols)
	}
}

func TestNewFromConfigRejectsWrongDependencyCount(t *testing.T) {
	n := config.Node{Kind: "Not", Dependencies: []string{"a", "b"}}
	if _, err := NewFromConfig("notit", n); err == nil {
		t.Fatalf("expected an error for a two-dependency Not node")
	}
}

func TestNewFromConfigMaxAliasSetsMaxMode(t *testing.T) {
	n := config.Node{Kind: "Max", Dependencies: []string{"a"}}
	if _, err := NewFromConfig("peak", n); err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
}

func TestNewFromConfigRejectsUnknownKind(t *testing.T) {
	n := config.Node{Kind: "NoSuchKind"}
	_, err := NewFromConfig("mystery", n)
	if err == nil {
		t.Fatalf("expected an unknown-kind error")
	}
	if !errors.Is(err, config.ErrUnknownProcessorKind) {
		t.Fatalf("expected error to wrap config.ErrUnknownProcessorKind, got %v", err)
	}
}

func TestNewFromConfigRejectsUnknownResultKind(t *testing.T) {
	n := config.Node{
		Kind:         "Identity",
		Dependencies: []string{"a"},
		Params:       map[string]interface{}{"resultKind": "NotAKind"},
	}
	if _, err := NewFromConfig("id", n); err == nil {
		t.Fatalf("expected an error for an unrecognized resultKind")
	}
}

func TestNewFromConfigCounterNeedsNoDependency(t *testing.T) {
	n := config.Node{Kind: "Counter"}
	node, err := NewFromConfig("count", n)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if len(node.Dependencies()) != 0 {
		t.Fatalf("expected Counter to have no dependencies, got %v", node.Dependencies())
	}
}

func TestNewFromConfigBuildsPeakFinder(t *testing.T) {
	cols, rows := 10, 10
	n := config.Node{
		Kind:         "PeakFinder",
		Dependencies: []string{"in"},
		Params: map[string]interface{}{
			"cols": cols, "rows": rows,
			"threshold": 5, "boxRadius": 3, "excludeR2": 1,
			"minBgPixels": 1, "snrMin": 1, "growSnrMin": 1, "maxRows": 10,
		},
	}
	node, err := NewFromConfig("peaks", n)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	bins := make([]float64, cols*rows)
	for i := range bins {
		bins[i] = 1
	}
	bins[5*cols+5] = 100
	in := proc.NewResult("in", proc.KindArray2D, cols, rows)
	in.Bins = bins

	out := proc.NewResult("peaks", proc.KindTable, len(peakTableCols), 10)
	shaped, ok := node.(*shapedNode)
	if !ok {
		t.Fatalf("expected a *shapedNode, got %T", node)
	}
	if err := shaped.Process(event.New(0), []*proc.Result{in}, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.FillCount != 1 {
		t.Fatalf("FillCount = %d, want 1 peak", out.FillCount)
	}
	col, row := out.Bins[0], out.Bins[1]
	if math.Abs(col-5) > 0.5 || math.Abs(row-5) > 0.5 {
		t.Fatalf("centroid = (%v,%v), want near (5,5)", col, row)
	}
}

func TestKnownKindsCoversEveryFactorySwitchCase(t *testing.T) {
	for _, kind := range []string{
		"Binary", "Unary", "Not", "RangeCheck", "Constant", "Identity",
		"ChangedByMoreThan", "Threshold", "ThresholdByReference", "AxisProjection",
		"WeightedAxisProjection", "RangeIntegral", "History", "MinMax", "Max",
		"Reduce", "FracStat", "StepPositionAtFraction", "AxisInquiry", "IIRFilter",
		"LocalMinimumTable", "LocalMedianBackgroundSubtraction", "PeakFinder",
		"Averaging", "Remap1D", "TofToEnergyRemap", "Counter",
	} {
		if _, ok := KnownKinds[kind]; !ok {
			t.Errorf("KnownKinds is missing %q", kind)
		}
	}
}
