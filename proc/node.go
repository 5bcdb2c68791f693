// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package proc

import "github.com/lcls-lab/shotpipe/event"

// Node is one stage of the processor DAG (§3.4). A Node's Process method is
// the only place application logic runs; everything else (dependency
// resolution, gating, caching) is the graph's job.
type Node interface {
	// Name is this node's unique key in the graph.
	Name() string
	// OutputKind is the shape of result this node produces; fixed at load
	// time and asserted against by any node depending on it.
	OutputKind() Kind
	// Dependencies lists the upstream node names this node reads, in the
	// order Process expects them in the ins slice.
	Dependencies() []string
	// Condition is the name of this node's gating predicate node, or "" for
	// unconditional (always runs).
	Condition() string
	// Hide marks a node as internal (e.g. Constant nodes), excluded from any
	// external listing of results.
	Hide() bool
	// Process fills out for the given event from its upstream inputs, in
	// Dependencies order. Process must not retain ins beyond the call: the
	// graph releases read locks on return.
	Process(ev *event.Event, ins []*Result, out *Result) error
}

// Retrainable is implemented by nodes that keep a historical or background
// model across events (§6.3 "retrain <node> resets whatever historical
// state that node keeps"). Graph.Retrain probes for this optional
// interface; a node that doesn't implement it has no history to reset.
type Retrainable interface {
	Retrain()
}

// Base is embedded by every concrete primitive in proc/ops to supply the
// boilerplate Name/OutputKind/Dependencies/Condition/Hide accessors, the
// same way the teacher's device drivers embed a small struct for their
// common String()/Halt() boilerplate. A type embedding Base need only add
// its own Process method to satisfy Node.
type Base struct {
	name       string
	outputKind Kind
	deps       []string
	condition  string
	hide       bool
	comment    string
}

// Name implements Node.
func (b *Base) Name() string { return b.name }

// OutputKind implements Node.
func (b *Base) OutputKind() Kind { return b.outputKind }

// Dependencies implements Node.
func (b *Base) Dependencies() []string { return b.deps }

// Condition implements Node.
func (b *Base) Condition() string { return b.condition }

// Hide implements Node.
func (b *Base) Hide() bool { return b.hide }

// Comment returns the node's free-text annotation, if any.
func (b *Base) Comment() string { return b.comment }

// NewBase constructs the common embedded fields for a concrete node.
// Primitive constructors in proc/ops call this from their own constructor.
func NewBase(name string, kind Kind, deps []string, condition string, hide bool, comment string) Base {
	return Base{name: name, outputKind: kind, deps: deps, condition: condition, hide: hide, comment: comment}
}
