// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package proc

import (
	"context"
	"fmt"

	"github.com/lcls-lab/shotpipe/event"
	"github.com/sirupsen/logrus"
)

// AlwaysTrue and AlwaysFalse are the two built-in, well-known condition
// node names every graph provides (§4.F "Gating predicate").
const (
	AlwaysTrue  = "AlwaysTrue"
	AlwaysFalse = "AlwaysFalse"
)

// Graph is the loaded, topologically ordered processor DAG: every node's
// cache, alongside the order in which a worker evaluates them for one
// event.
type Graph struct {
	Log *logrus.Entry

	order   []Node
	caches  map[string]*ResultCache
	workers int
}

type constantNode struct {
	Base
	value float64
}

func (n *constantNode) Process(ev *event.Event, ins []*Result, out *Result) error {
	out.Value = n.value
	out.IsTrue = n.value != 0
	for i := range out.Bins {
		out.Bins[i] = n.value
	}
	out.FillCount = 1
	return nil
}

func newAlwaysTrue() Node {
	return &constantNode{Base: NewBase(AlwaysTrue, KindScalar, nil, "", true, "built-in always-true gate"), value: 1}
}

func newAlwaysFalse() Node {
	return &constantNode{Base: NewBase(AlwaysFalse, KindScalar, nil, "", true, "built-in always-false gate"), value: 0}
}

// NewGraph resolves dependencies, topologically sorts, and allocates each
// node's result cache (§4.F steps 2-4). workers sizes every cache to
// workers+2 slots.
//
// The ordering algorithm is the teacher's own explodeStages: repeatedly
// peel off nodes whose remaining dependency set is empty; if a pass peels
// off nothing and nodes remain, that remainder is a cycle.
func NewGraph(nodes []Node, workers int, log *logrus.Entry) (*Graph, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	byName := make(map[string]Node, len(nodes)+2)
	all := append([]Node{newAlwaysTrue(), newAlwaysFalse()}, nodes...)
	for _, n := range all {
		if _, dup := byName[n.Name()]; dup {
			return nil, fmt.Errorf("shotpipe/proc: duplicate node name %q", n.Name())
		}
		byName[n.Name()] = n
	}

	deps := make(map[string]map[string]struct{}, len(all))
	for _, n := range all {
		ds := map[string]struct{}{}
		for _, d := range n.Dependencies() {
			if d == n.Name() {
				return nil, fmt.Errorf("shotpipe/proc: self-dependency on %q", n.Name())
			}
			if _, ok := byName[d]; !ok {
				return nil, fmt.Errorf("shotpipe/proc: unknown-dependency %q -> %q", n.Name(), d)
			}
			ds[d] = struct{}{}
		}
		if c := n.Condition(); c != "" {
			if c == n.Name() {
				return nil, fmt.Errorf("shotpipe/proc: self-dependency on %q (condition)", n.Name())
			}
			if _, ok := byName[c]; !ok {
				return nil, fmt.Errorf("shotpipe/proc: unknown-dependency %q -> %q (condition)", n.Name(), c)
			}
			ds[c] = struct{}{}
		}
		deps[n.Name()] = ds
	}

	var order []Node
	remaining := len(all)
	for remaining > 0 {
		var stage []string
		for name, ds := range deps {
			if len(ds) == 0 {
				stage = append(stage, name)
			}
		}
		if len(stage) == 0 {
			return nil, fmt.Errorf("shotpipe/proc: cycle in processor graph among %d remaining nodes", remaining)
		}
		for _, name := range stage {
			order = append(order, byName[name])
			delete(deps, name)
			remaining--
		}
		for _, ds := range deps {
			for _, name := range stage {
				delete(ds, name)
			}
		}
	}

	caches := make(map[string]*ResultCache, len(order))
	cacheSize := workers + 2
	if cacheSize < 3 {
		cacheSize = 3
	}
	for _, n := range order {
		kind, cols, rows := n.OutputKind(), 0, 0
		if shaped, ok := n.(interface{ Shape() (int, int) }); ok {
			cols, rows = shaped.Shape()
		}
		name := n.Name()
		caches[name] = NewResultCache(cacheSize, func() *Result { return NewResult(name, kind, cols, rows) })
	}

	return &Graph{Log: log, order: order, caches: caches, workers: workers}, nil
}

// Cache returns the named node's result cache, or nil if no such node.
func (g *Graph) Cache(name string) *ResultCache { return g.caches[name] }

// Nodes returns every node in topological order, including the built-in
// AlwaysTrue/AlwaysFalse gates, for callers that need to enumerate results
// (e.g. a persistence fan-out) without duplicating the graph's own ordering.
func (g *Graph) Nodes() []Node { return g.order }

// Retrain resets the named node's historical/background model (§6.3). It
// errors if no such node exists, and is a documented no-op — logged, not
// failed — if the node exists but keeps no resettable history.
func (g *Graph) Retrain(name string) error {
	for _, n := range g.order {
		if n.Name() != name {
			continue
		}
		r, ok := n.(Retrainable)
		if !ok {
			g.Log.WithField("node", name).Info("retrain requested on a node with no historical state; nothing to do")
			return nil
		}
		r.Retrain()
		return nil
	}
	return fmt.Errorf("shotpipe/proc: retrain: unknown node %q", name)
}

// ClearResult resets the named node's currently-published result to its
// zero value (§6.3 "clear <node>"), without touching any historical state a
// Retrain would reset.
func (g *Graph) ClearResult(name string) error {
	cache, ok := g.caches[name]
	if !ok {
		return fmt.Errorf("shotpipe/proc: clear: unknown node %q", name)
	}
	latest := cache.Latest()
	if latest == nil {
		return nil
	}
	defer cache.Release(latest)
	latest.Lock()
	latest.Reset(latest.EventID)
	latest.Unlock()
	return nil
}

// Run evaluates every node in topological order for one event, on the
// calling goroutine (workers own the event and call Run once per accepted
// event; §5 "Workers are symmetric").
func (g *Graph) Run(ctx context.Context, ev *event.Event) error {
	id := ev.ID()
	released := make([]func(), 0, len(g.order))
	defer func() {
		for _, r := range released {
			r()
		}
	}()

	for _, n := range g.order {
		cache := g.caches[n.Name()]
		out, err := cache.Reserve(id)
		if err != nil {
			g.Log.WithError(err).WithField("node", n.Name()).Error("reserve result slot")
			continue
		}

		runs := true
		if cond := n.Condition(); cond != "" {
			condResult, err := g.caches[cond].Item(ctx, id)
			if err != nil {
				g.Log.WithError(err).WithField("node", n.Name()).Warn("condition unavailable, treating as false")
				runs = false
			} else {
				condResult.RLock()
				runs = condResult.IsTrue
				condResult.RUnlock()
				g.caches[cond].Release(condResult)
			}
		}

		if !runs {
			out.Lock()
			out.Reset(id)
			out.Unlock()
			cache.Publish(id)
			continue
		}

		ins := make([]*Result, len(n.Dependencies()))
		ok := true
		for i, dep := range n.Dependencies() {
			r, err := g.caches[dep].Item(ctx, id)
			if err != nil {
				g.Log.WithError(err).WithFields(logrus.Fields{"node": n.Name(), "dependency": dep}).Error("upstream result unavailable")
				ok = false
				break
			}
			r.RLock()
			ins[i] = r
			depCache, depName := g.caches[dep], r
			released = append(released, func() { depCache.Release(depName) })
		}

		if ok {
			out.Lock()
			if err := n.Process(ev, ins, out); err != nil {
				g.Log.WithError(err).WithFields(logrus.Fields{"node": n.Name(), "eventId": id}).Error("invalid-data")
			}
			out.Unlock()
		}
		for _, r := range ins {
			if r != nil {
				r.RUnlock()
			}
		}
		cache.Publish(id)
	}
	return nil
}
