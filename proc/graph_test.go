// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package proc

import (
	"context"
	"testing"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/sirupsen/logrus"
)

// passThroughNode is a minimal test Node: it copies its single dependency's
// scalar value through unchanged, and optionally implements Retrainable via
// a counter, standing in for the proc/ops primitives this package can't
// import without an import cycle.
type passThroughNode struct {
	Base
	retrainable bool
	retrains    int
}

func newPassThrough(name string, deps []string, condition string, retrainable bool) *passThroughNode {
	return &passThroughNode{
		Base:        NewBase(name, KindScalar, deps, condition, false, ""),
		retrainable: retrainable,
	}
}

func (n *passThroughNode) Process(ev *event.Event, ins []*Result, out *Result) error {
	if len(ins) > 0 {
		out.Value = ins[0].Value
		out.IsTrue = ins[0].IsTrue
	}
	out.FillCount = 1
	return nil
}

func (n *passThroughNode) Retrain() {
	if n.retrainable {
		n.retrains++
	}
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestNewGraphOrdersByDependency(t *testing.T) {
	a := newPassThrough("a", nil, "", false)
	b := newPassThrough("b", []string{"a"}, "", false)
	c := newPassThrough("c", []string{"b"}, "", false)

	g, err := NewGraph([]Node{c, b, a}, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	pos := map[string]int{}
	for i, n := range g.order {
		pos[n.Name()] = i
	}
	if !(pos["a"] < pos["b"] && pos["b"] < pos["c"]) {
		t.Fatalf("expected order a < b < c, got positions %v", pos)
	}
	if _, ok := pos[AlwaysTrue]; !ok {
		t.Fatalf("expected built-in %q node in graph", AlwaysTrue)
	}
	if _, ok := pos[AlwaysFalse]; !ok {
		t.Fatalf("expected built-in %q node in graph", AlwaysFalse)
	}
}

func TestNewGraphDetectsCycle(t *testing.T) {
	a := newPassThrough("a", []string{"b"}, "", false)
	b := newPassThrough("b", []string{"a"}, "", false)
	if _, err := NewGraph([]Node{a, b}, 1, testLog()); err == nil {
		t.Fatalf("expected a cycle error")
	}
}

func TestNewGraphRejectsDuplicateName(t *testing.T) {
	a1 := newPassThrough("dup", nil, "", false)
	a2 := newPassThrough("dup", nil, "", false)
	if _, err := NewGraph([]Node{a1, a2}, 1, testLog()); err == nil {
		t.Fatalf("expected a duplicate-name error")
	}
}

func TestNewGraphRejectsUnknownDependency(t *testing.T) {
	a := newPassThrough("a", []string{"ghost"}, "", false)
	if _, err := NewGraph([]Node{a}, 1, testLog()); err == nil {
		t.Fatalf("expected an unknown-dependency error")
	}
}

func TestNewGraphRejectsSelfDependency(t *testing.T) {
	a := newPassThrough("a", []string{"a"}, "", false)
	if _, err := NewGraph([]Node{a}, 1, testLog()); err == nil {
		t.Fatalf("expected a self-dependency error")
	}
}

func TestNewGraphRejectsUnknownCondition(t *testing.T) {
	a := newPassThrough("a", nil, "ghost", false)
	if _, err := NewGraph([]Node{a}, 1, testLog()); err == nil {
		t.Fatalf("expected an unknown-dependency (condition) error")
	}
}

func TestGraphRunPropagatesScalarValue(t *testing.T) {
	a := newPassThrough("a", nil, "", false)
	b := newPassThrough("b", []string{"a"}, "", false)
	g, err := NewGraph([]Node{a, b}, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	ev := event.New(64)
	ev.SetID(7)

	r, err := g.Cache("a").Reserve(7)
	if err != nil {
		t.Fatalf("reserve a: %v", err)
	}
	r.Lock()
	r.Value, r.IsTrue = 3.5, true
	r.Unlock()
	g.Cache("a").Publish(7)

	if err := g.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := g.Cache("b").Item(context.Background(), 7)
	if err != nil {
		t.Fatalf("item b: %v", err)
	}
	defer g.Cache("b").Release(got)
	if got.Value != 3.5 {
		t.Fatalf("got b.Value = %v, want 3.5", got.Value)
	}
}

func TestGraphRunGatesOnFalseCondition(t *testing.T) {
	a := newPassThrough("a", nil, "", false)
	gated := newPassThrough("gated", []string{"a"}, AlwaysFalse, false)
	g, err := NewGraph([]Node{a, gated}, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	ev := event.New(64)
	ev.SetID(1)

	r, err := g.Cache("a").Reserve(1)
	if err != nil {
		t.Fatalf("reserve a: %v", err)
	}
	r.Lock()
	r.Value = 99
	r.Unlock()
	g.Cache("a").Publish(1)

	if err := g.Run(context.Background(), ev); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := g.Cache("gated").Item(context.Background(), 1)
	if err != nil {
		t.Fatalf("item gated: %v", err)
	}
	defer g.Cache("gated").Release(got)
	if got.FillCount != 0 || got.Value != 0 {
		t.Fatalf("expected gated node to stay at its zero value, got FillCount=%d Value=%v", got.FillCount, got.Value)
	}
}

func TestGraphRetrainResetsStatefulNode(t *testing.T) {
	stateful := newPassThrough("stateful", nil, "", true)
	g, err := NewGraph([]Node{stateful}, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	if err := g.Retrain("stateful"); err != nil {
		t.Fatalf("Retrain: %v", err)
	}
	if stateful.retrains != 1 {
		t.Fatalf("expected Retrain to be called once, got %d", stateful.retrains)
	}
}

func TestGraphRetrainNoOpsOnBuiltinGate(t *testing.T) {
	g, err := NewGraph(nil, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	if err := g.Retrain(AlwaysTrue); err != nil {
		t.Fatalf("Retrain(%q) should be a logged no-op, got error: %v", AlwaysTrue, err)
	}
}

func TestGraphRetrainUnknownNodeErrors(t *testing.T) {
	g, err := NewGraph(nil, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	if err := g.Retrain("ghost"); err == nil {
		t.Fatalf("expected an error retraining an unknown node")
	}
}

func TestGraphClearResultZeroesPublishedValue(t *testing.T) {
	a := newPassThrough("a", nil, "", false)
	g, err := NewGraph([]Node{a}, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	r, err := g.Cache("a").Reserve(1)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	r.Lock()
	r.Value, r.FillCount = 12, 1
	r.Unlock()
	g.Cache("a").Publish(1)

	if err := g.ClearResult("a"); err != nil {
		t.Fatalf("ClearResult: %v", err)
	}

	latest := g.Cache("a").Latest()
	if latest == nil {
		t.Fatalf("expected a latest result after clearing")
	}
	defer g.Cache("a").Release(latest)
	if latest.Value != 0 || latest.FillCount != 0 {
		t.Fatalf("expected cleared result, got Value=%v FillCount=%d", latest.Value, latest.FillCount)
	}
}

func TestGraphClearResultUnknownNodeErrors(t *testing.T) {
	g, err := NewGraph(nil, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	if err := g.ClearResult("ghost"); err == nil {
		t.Fatalf("expected an error clearing an unknown node")
	}
}

func TestGraphNodesIncludesBuiltinGates(t *testing.T) {
	a := newPassThrough("a", nil, "", false)
	g, err := NewGraph([]Node{a}, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	names := map[string]bool{}
	for _, n := range g.Nodes() {
		names[n.Name()] = true
	}
	if !names["a"] || !names[AlwaysTrue] || !names[AlwaysFalse] {
		t.Fatalf("expected Nodes() to include a, %q, and %q; got %v", AlwaysTrue, AlwaysFalse, names)
	}
}

func TestGraphClearResultBeforeAnyPublishIsNoOp(t *testing.T) {
	a := newPassThrough("a", nil, "", false)
	g, err := NewGraph([]Node{a}, 1, testLog())
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	if err := g.ClearResult("a"); err != nil {
		t.Fatalf("ClearResult before any publish should be a no-op, got: %v", err)
	}
}
