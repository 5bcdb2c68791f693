// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ops is the processor primitive library (§4.G): pure functions
// over upstream result snapshots plus configuration, each wrapped as a
// proc.Node. Every constructor here takes the graph wiring it needs
// (name, dependencies, condition) already resolved; the graph itself does
// dependency lookup and gating.
package ops

import (
	"fmt"
	"math"
	"sync"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
)

// BinaryOpFunc names the operators a Binary node can apply element-wise.
type BinaryOpFunc func(a, b float64) float64

// Binary operators available to a BinaryOp node (§4.G "Binary op").
var BinaryOps = map[string]BinaryOpFunc{
	"+":  func(a, b float64) float64 { return a + b },
	"-":  func(a, b float64) float64 { return a - b },
	"*":  func(a, b float64) float64 { return a * b },
	"/":  func(a, b float64) float64 { return a / b },
	"and": func(a, b float64) float64 { return boolF(a != 0 && b != 0) },
	"or":  func(a, b float64) float64 { return boolF(a != 0 || b != 0) },
	"<":  func(a, b float64) float64 { return boolF(a < b) },
	"<=": func(a, b float64) float64 { return boolF(a <= b) },
	">":  func(a, b float64) float64 { return boolF(a > b) },
	">=": func(a, b float64) float64 { return boolF(a >= b) },
	"==": func(a, b float64) float64 { return boolF(a == b) },
	"!=": func(a, b float64) float64 { return boolF(a != b) },
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewBinary wires a binary-op node. Shape mismatch between h1 and h2 is
// checked on every Process call (shapes aren't known until the cache is
// built from a live upstream, so this is a run time assertion, documented
// as a load-time failure in the design and intended to be caught in a
// startup dry run over the first event).
func NewBinary(name string, deps []string, condition string, op string, kind proc.Kind, cols, rows int) (*shapedNode, error) {
	fn, ok := BinaryOps[op]
	if !ok {
		return nil, fmt.Errorf("shotpipe/ops: unknown binary op %q", op)
	}
	n := &shapedNode{cols: cols, rows: rows}
	n.Base = proc.NewBase(name, kind, deps, condition, false, "")
	n.fn = func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		if len(ins) != 2 {
			return fmt.Errorf("shotpipe/ops: binary op %q wants 2 inputs, got %d", name, len(ins))
		}
		a, b := ins[0], ins[1]
		if a.Kind != b.Kind || len(a.Bins) != len(b.Bins) {
			return fmt.Errorf("shotpipe/ops: shape-mismatch in binary op %q", name)
		}
		if out.Kind == proc.KindScalar {
			out.Value = fn(a.Value, b.Value)
			out.IsTrue = out.Value != 0
		} else {
			for i := range out.Bins {
				out.Bins[i] = fn(a.Bins[i], b.Bins[i])
			}
		}
		out.FillCount = 1
		return nil
	}
	return n, nil
}

// shapedNode adapts a plain processing closure into a proc.Node, reporting
// a fixed (cols, rows) shape via the optional Shape() hook the graph reads
// when sizing non-scalar result caches.
type shapedNode struct {
	proc.Base
	fn    func(ev *event.Event, ins []*proc.Result, out *proc.Result) error
	cols  int
	rows  int
	reset func() // non-nil for nodes keeping node-local historical state
}

// Shape reports this node's fixed (columns, rows) so the graph can size its
// non-scalar result cache; read via the optional interface NewGraph probes
// for.
func (n *shapedNode) Shape() (int, int) { return n.cols, n.rows }

func (n *shapedNode) Process(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
	return n.fn(ev, ins, out)
}

// Retrain implements proc.Retrainable. Every shapedNode has this method, so
// Graph.Retrain's interface probe always finds it: nodes constructed with a
// reset closure (Averaging, Covariance, the IIR filter, History, ...) clear
// their history, and nodes with no history (reset is nil) do nothing,
// without the probe's "nothing to do" log line.
func (n *shapedNode) Retrain() {
	if n.reset != nil {
		n.reset()
	}
}

func newShaped(name string, kind proc.Kind, deps []string, condition string, cols, rows int, fn func(ev *event.Event, ins []*proc.Result, out *proc.Result) error) *shapedNode {
	n := &shapedNode{cols: cols, rows: rows, fn: fn}
	n.Base = proc.NewBase(name, kind, deps, condition, false, "")
	return n
}

// NewUnary applies op(H[i], v) or op(v, H[i]) depending on valueFirst. The
// value is sourced either from config (fromConfig=true, constant used
// directly) or from a referenced Scalar node supplied as deps[1]
// (fromConfig=false) — a load-time choice per §4.G "Unary op".
// When fromConfig is false, v is read from ins[1] (a Scalar) each event;
// the caller is responsible for listing that node as the second
// dependency.
func NewUnary(name string, deps []string, condition string, opName string, valueFirst, fromConfig bool, constant float64, kind proc.Kind, cols, rows int) (*shapedNode, error) {
	fn, ok := BinaryOps[opName]
	if !ok {
		return nil, fmt.Errorf("shotpipe/ops: unknown unary op %q", opName)
	}
	return newShaped(name, kind, deps, condition, cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		if len(ins) < 1 {
			return fmt.Errorf("shotpipe/ops: unary op %q needs at least 1 input", name)
		}
		h := ins[0]
		v := constant
		if !fromConfig {
			if len(ins) < 2 {
				return fmt.Errorf("shotpipe/ops: unary op %q expects a scalar value node", name)
			}
			v = ins[1].Value
		}
		apply := func(x float64) float64 {
			if valueFirst {
				return fn(v, x)
			}
			return fn(x, v)
		}
		if out.Kind == proc.KindScalar {
			out.Value = apply(h.Value)
			out.IsTrue = out.Value != 0
		} else {
			for i := range out.Bins {
				out.Bins[i] = apply(h.Bins[i])
			}
		}
		out.FillCount = 1
		return nil
	}), nil
}

// NewNot negates a Scalar's truthiness.
func NewNot(name, dep, condition string) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		out.IsTrue = !ins[0].IsTrue
		out.Value = boolF(out.IsTrue)
		out.FillCount = 1
		return nil
	})
}

// NewRangeCheck reports whether lo < sum(H) < hi.
func NewRangeCheck(name, dep, condition string, lo, hi float64) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		sum := sumOf(ins[0])
		out.IsTrue = lo < sum && sum < hi
		out.Value = boolF(out.IsTrue)
		out.FillCount = 1
		return nil
	})
}

func sumOf(r *proc.Result) float64 {
	if r.Kind == proc.KindScalar {
		return r.Value
	}
	s := 0.0
	for _, v := range r.Bins {
		s += v
	}
	return s
}

// NewConstant returns an always-hidden node filled with value at every
// bin (or as the scalar value), refilled on every event since result slots
// are reset whenever the cache reuses them.
func NewConstant(name string, kind proc.Kind, cols, rows int, value float64) *shapedNode {
	n := newShaped(name, kind, nil, "", cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		out.Value = value
		out.IsTrue = value != 0
		for i := range out.Bins {
			out.Bins[i] = value
		}
		out.FillCount = 1
		return nil
	})
	n.Base = proc.NewBase(name, kind, nil, "", true, "constant")
	return n
}

// NewIdentity passes a copy of its single upstream through unchanged.
func NewIdentity(name, dep, condition string, kind proc.Kind, cols, rows int) *shapedNode {
	return newShaped(name, kind, []string{dep}, condition, cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		src := ins[0]
		out.Value, out.IsTrue = src.Value, src.IsTrue
		copy(out.Bins, src.Bins)
		out.Overflow, out.Underflow = src.Overflow, src.Underflow
		out.FillCount = 1
		return nil
	})
}

// changedByState is the node-local previous-value memory for
// ChangedByMoreThan, guarded by its own lock (§4.G "records previous value
// under a lock").
type changedByState struct {
	mu   sync.Mutex
	has  bool
	prev float64
}

// NewChangedByMoreThan reports |curr-prev| > eps, with eps defaulting to
// the smallest positive representable float64 when configured as 0 (so a
// zero epsilon still distinguishes "changed at all" from "bit-identical").
func NewChangedByMoreThan(name, dep, condition string, eps float64) *shapedNode {
	if eps == 0 {
		eps = math.SmallestNonzeroFloat64
	}
	st := &changedByState{}
	node := newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		curr := ins[0].Value
		st.mu.Lock()
		changed := st.has && math.Abs(curr-st.prev) > eps
		st.prev, st.has = curr, true
		st.mu.Unlock()
		out.IsTrue = changed
		out.Value = boolF(changed)
		out.FillCount = 1
		return nil
	})
	node.reset = func() {
		st.mu.Lock()
		st.has, st.prev = false, 0
		st.mu.Unlock()
	}
	return node
}

// NewThreshold implements R[i] = H[i] > t ? H[i] : 0.
func NewThreshold(name, dep, condition string, t float64, kind proc.Kind, cols, rows int) *shapedNode {
	return newShaped(name, kind, []string{dep}, condition, cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h := ins[0]
		for i, v := range h.Bins {
			if v > t {
				out.Bins[i] = v
			} else {
				out.Bins[i] = 0
			}
		}
		out.FillCount = 1
		return nil
	})
}

// NewThresholdByReference implements the pixel-wise masked variant: where
// lowerBound < mask[i] < upperBound, replace by userValue; else keep H[i].
func NewThresholdByReference(name string, deps []string, condition string, lower, upper, userValue float64, kind proc.Kind, cols, rows int) *shapedNode {
	return newShaped(name, kind, deps, condition, cols, rows, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		h, mask := ins[0], ins[1]
		if len(h.Bins) != len(mask.Bins) {
			return fmt.Errorf("shotpipe/ops: shape-mismatch in threshold-by-reference %q", name)
		}
		for i, v := range h.Bins {
			if lower < mask.Bins[i] && mask.Bins[i] < upper {
				out.Bins[i] = userValue
			} else {
				out.Bins[i] = v
			}
		}
		out.FillCount = 1
		return nil
	})
}
