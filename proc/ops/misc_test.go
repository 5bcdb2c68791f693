// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

type fakeFrameSink struct {
	wrote   bool
	cols    int
	rows    int
	pixels  []float64
	eventID uint64
}

func (f *fakeFrameSink) WriteFrame(eventID uint64, cols, rows int, pixels []float64) error {
	f.wrote, f.cols, f.rows, f.eventID = true, cols, rows, eventID
	f.pixels = append([]float64(nil), pixels...)
	return nil
}

func (f *fakeFrameSink) Close() error { return nil }

func TestCBFFrameWriterCopiesReferencedFrame(t *testing.T) {
	sink := &fakeFrameSink{}
	node := NewCBFFrameWriter("cbf", "frame", "", 2, 2, sink)
	in := proc.NewResult("frame", proc.KindArray2D, 2, 2)
	in.Bins = []float64{1, 2, 3, 4}
	out := proc.NewResult("cbf", proc.KindScalar, 0, 0)
	ev := event.New(0)
	ev.SetID(7)
	if err := node.Process(ev, []*proc.Result{in}, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !sink.wrote || sink.eventID != 7 {
		t.Fatalf("expected frame written for event 7, sink=%+v", sink)
	}
}

func TestSinkSetsQuitSignalOnlyWhenTrue(t *testing.T) {
	signal := &QuitSignal{}
	node := NewSink("quit", "pred", "", signal)
	pred := proc.NewResult("pred", proc.KindScalar, 0, 0)
	out := proc.NewResult("quit", proc.KindScalar, 0, 0)
	ev := event.New(0)

	pred.IsTrue = false
	if err := node.Process(ev, []*proc.Result{pred}, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if signal.Fired() {
		t.Fatalf("signal should not have fired yet")
	}

	pred.IsTrue = true
	if err := node.Process(ev, []*proc.Result{pred}, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !signal.Fired() {
		t.Fatalf("signal should have fired")
	}
}

func TestEventIDListFilterMatchesLoadedIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.txt")
	if err := os.WriteFile(path, []byte("1\n3\n5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	node, err := NewEventIDListFilter("idlist", "", path)
	if err != nil {
		t.Fatalf("NewEventIDListFilter: %v", err)
	}
	out := proc.NewResult("idlist", proc.KindScalar, 0, 0)
	ev := event.New(0)

	ev.SetID(3)
	if err := node.Process(ev, nil, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.IsTrue {
		t.Fatalf("event id 3 should be in the list")
	}

	ev.SetID(4)
	if err := node.Process(ev, nil, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.IsTrue {
		t.Fatalf("event id 4 should not be in the list")
	}
}

func TestEventIDListFilterMissingFileErrors(t *testing.T) {
	if _, err := NewEventIDListFilter("idlist", "", "/nonexistent/path"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestCounterAccumulatesAcrossCalls(t *testing.T) {
	node := NewCounter("count", "")
	out := proc.NewResult("count", proc.KindScalar, 0, 0)
	ev := event.New(0)
	for i := 0; i < 3; i++ {
		if err := node.Process(ev, nil, out); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if out.Value != 3 {
		t.Fatalf("counter = %v, want 3", out.Value)
	}
}
