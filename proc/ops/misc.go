// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"bufio"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
	"github.com/lcls-lab/shotpipe/sink"
)

// NewCBFFrameWriter is the "CBF writer" primitive (§4.G): not a node with a
// meaningful result of its own, it copies the referenced frame to
// sink.FrameSink on each accepted event and reports a Scalar of 1 purely so
// the graph has something to cache and gate on. The final dark frame is
// written by the writer's own Close; neither this node nor proc.Graph
// calls it.
func NewCBFFrameWriter(name, dep, condition string, cols, rows int, writer sink.FrameSink) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		if err := writer.WriteFrame(ev.ID(), cols, rows, ins[0].Bins); err != nil {
			return fmt.Errorf("shotpipe/ops: cbf writer %q: %w", name, err)
		}
		out.Value = 1
		out.IsTrue = true
		out.FillCount = 1
		return nil
	})
}

// QuitSignal records that a Sink node's predicate has fired. Nothing in
// cmd/shotpiped constructs a Sink node or reads a QuitSignal, so the
// daemon's input loop does not stop on it.
type QuitSignal struct {
	fired atomic.Bool
}

// Fired reports whether the quit predicate has triggered.
func (q *QuitSignal) Fired() bool { return q.fired.Load() }

// NewSink implements the "Sink" primitive: when dep's Scalar is true, it
// sets signal. The node does not stop any input loop itself; the request is
// visible only through signal.Fired.
func NewSink(name, dep, condition string, signal *QuitSignal) *shapedNode {
	return newShaped(name, proc.KindScalar, []string{dep}, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		if ins[0].IsTrue {
			signal.fired.Store(true)
		}
		out.IsTrue = ins[0].IsTrue
		out.Value = boolF(out.IsTrue)
		out.FillCount = 1
		return nil
	})
}

// NewEventIDListFilter loads a file of newline-separated event ids and
// reports whether the current event's id is in that set (§4.G "Event-id
// list filter").
func NewEventIDListFilter(name, condition, path string) (*shapedNode, error) {
	ids, err := loadEventIDList(path)
	if err != nil {
		return nil, err
	}
	return newShaped(name, proc.KindScalar, nil, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		_, in := ids[ev.ID()]
		out.IsTrue = in
		out.Value = boolF(in)
		out.FillCount = 1
		return nil
	}), nil
}

func loadEventIDList(path string) (map[uint64]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shotpipe/ops: open event-id list %s: %w", path, err)
	}
	defer f.Close()
	ids := make(map[uint64]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(line, "%d", &id); err != nil {
			return nil, fmt.Errorf("shotpipe/ops: malformed event-id %q in %s: %w", line, path, err)
		}
		ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("shotpipe/ops: read event-id list %s: %w", path, err)
	}
	return ids, nil
}

// counterState holds the running invocation count a Counter node
// accumulates across events.
type counterState struct {
	n int64
}

// NewCounter implements "Counter": accumulate the number of invocations
// into a Scalar. Since conditional gating skips Process entirely, a
// gated-false event does not advance the count.
func NewCounter(name, condition string) *shapedNode {
	st := &counterState{}
	return newShaped(name, proc.KindScalar, nil, condition, 0, 0, func(ev *event.Event, ins []*proc.Result, out *proc.Result) error {
		st.n++
		out.Value = float64(st.n)
		out.IsTrue = st.n != 0
		out.FillCount = 1
		return nil
	})
}
