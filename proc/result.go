// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package proc implements the processor graph (§4.F): a flat, named,
// topologically ordered set of nodes, each producing one typed Result per
// accepted event id, gated by an optional condition node.
package proc

import "sync"

// Kind is a result's output shape, fixed for a node at load time.
type Kind int

// The four result shapes a node can produce.
const (
	KindScalar Kind = iota
	KindArray1D
	KindArray2D
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindArray1D:
		return "Array1D"
	case KindArray2D:
		return "Array2D"
	case KindTable:
		return "Table"
	default:
		return "Kind(?)"
	}
}

// Result is the typed output one node produces for one event. Every kind of
// payload lives behind the same struct so the result cache can be
// homogeneous; which fields are meaningful is determined by Kind.
//
// A Result's read/write lock is acquired by the node that fills it (write)
// and by every downstream reader (read); callers never hold it across a
// blocking call.
type Result struct {
	mu sync.RWMutex

	Name      string
	Kind      Kind
	EventID   uint64
	FillCount int

	// Scalar
	Value  float64
	IsTrue bool

	// Array1D / Array2D / Table share these axis and bin fields. Table
	// reuses the Array2D layout: one row per emitted record, columns
	// carrying named fields (documented per-primitive).
	Columns     int
	Rows        int
	LowerX      float64
	UpperX      float64
	TitleX      string
	LowerY      float64
	UpperY      float64
	TitleY      string
	Bins        []float64 // row-major, len == Columns*Rows for 2D, len == Columns for 1D
	Overflow    float64
	Underflow   float64
}

// NewResult returns a zero-valued result of the given kind, shaped per cols
// and rows (rows is ignored for Scalar and Array1D).
func NewResult(name string, kind Kind, cols, rows int) *Result {
	r := &Result{Name: name, Kind: kind}
	switch kind {
	case KindScalar:
	case KindArray1D:
		r.Columns = cols
		r.Bins = make([]float64, cols)
	case KindArray2D, KindTable:
		r.Columns, r.Rows = cols, rows
		r.Bins = make([]float64, cols*rows)
	}
	return r
}

// Lock acquires the write lock; callers must Unlock when done filling.
func (r *Result) Lock()   { r.mu.Lock() }
func (r *Result) Unlock() { r.mu.Unlock() }

// RLock acquires the read lock for downstream consumption.
func (r *Result) RLock()   { r.mu.RLock() }
func (r *Result) RUnlock() { r.mu.RUnlock() }

// Reset zero-fills the result and clears its fill count and true-ness,
// preserving name/kind/shape. Used both to seed a fresh slot and to write
// the conditional-gating "type's zero" value (§4.F, §4.G).
func (r *Result) Reset(eventID uint64) {
	r.EventID = eventID
	r.FillCount = 0
	r.Value = 0
	r.IsTrue = false
	r.Overflow = 0
	r.Underflow = 0
	for i := range r.Bins {
		r.Bins[i] = 0
	}
}

// CopyShapeFrom copies name/kind/shape (not values) from src, used when a
// node's output shape is only known after inspecting an upstream's shape
// (e.g. Identity, axis projection).
func (r *Result) CopyShapeFrom(src *Result) {
	r.Kind = src.Kind
	r.Columns = src.Columns
	r.Rows = src.Rows
	r.LowerX, r.UpperX, r.TitleX = src.LowerX, src.UpperX, src.TitleX
	r.LowerY, r.UpperY, r.TitleY = src.LowerY, src.UpperY, src.TitleY
	if len(r.Bins) != len(src.Bins) {
		r.Bins = make([]float64, len(src.Bins))
	}
}
