// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lcls-lab/shotpipe/control"
	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/proc"
	"github.com/lcls-lab/shotpipe/ring"
	"github.com/lcls-lab/shotpipe/xtc"
)

// frameKind tags one length-delimited frame read from the input source as
// either an L1-accept datagram or a transition, since the spec leaves frame
// delimitation and source bootstrap abstract ("a source yields a delimited
// frame") and doesn't prescribe a wire envelope.
type frameKind uint8

const (
	frameL1Accept   frameKind = 0
	frameTransition frameKind = 1
)

// readFrame reads one [kind byte][serviceId uint32 LE][length uint32
// LE][payload] record. serviceId is meaningful only for frameTransition (the
// odd/even release rule in shm.Server.HandleTransition).
func readFrame(r *bufio.Reader) (frameKind, int, []byte, error) {
	head := make([]byte, 9)
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, 0, nil, err
	}
	kind := frameKind(head[0])
	serviceID := int(binary.LittleEndian.Uint32(head[1:5]))
	n := binary.LittleEndian.Uint32(head[5:9])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	return kind, serviceID, payload, nil
}

func openInput(path string) (*bufio.Reader, func(), error) {
	if path == "-" {
		return bufio.NewReader(os.Stdin), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReader(f), func() { f.Close() }, nil
}

// runInput is the producer loop (§4.E, §4.B): it reads frames, decodes
// transitions directly (updating the converter registry's config store and
// fanning them out to the live-monitor server), and decodes L1-accept
// datagrams into ring slots for the workers to process. server is nil when
// the live-monitor server was disabled at startup.
func runInput(ctx context.Context, in *bufio.Reader, r *ring.Ring, walker *xtc.Walker, reg *convreg.Registry, server *liveServer, log *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		kind, serviceID, payload, err := readFrame(in)
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Error("read input frame")
			}
			return
		}

		if kind == frameTransition {
			handleTransitionFrame(serviceID, payload, walker, reg, server, log)
			continue
		}

		h, err := r.NextToFill(ctx)
		if err != nil {
			return
		}
		ev := h.Event()
		copy(ev.Grow(len(payload)), payload)
		res := walker.Walk(ev.Datagram(), reg, ev)
		accepted := res != xtc.Stop
		r.DoneFilling(h, accepted)

		if accepted && server != nil {
			if err := server.HandleL1Accept(payload); err != nil {
				log.WithError(err).Error("shm: forward L1-accept")
			}
		}
	}
}

// handleTransitionFrame decodes a transition into a throwaway event purely
// to drive the converter registry's configuration-store writes (§4.C); the
// decoded event itself carries no processor-graph meaning and is discarded.
func handleTransitionFrame(serviceID int, payload []byte, walker *xtc.Walker, reg *convreg.Registry, server *liveServer, log *logrus.Entry) {
	ev := event.New(len(payload))
	copy(ev.Grow(len(payload)), payload)
	walker.Walk(ev.Datagram(), reg, ev)

	if server != nil {
		if err := server.HandleTransition(serviceID, payload); err != nil {
			log.WithError(err).Error("shm: forward transition")
		}
	}
}

// runWorker is one symmetric processing worker (§5 "Workers are
// symmetric"): it pulls an accepted event off the ring, evaluates the
// processor graph over it, and persists every visible node's result.
func runWorker(ctx context.Context, id int, r *ring.Ring, graph *proc.Graph, sinks *defaultSinks, metrics *control.Metrics, handler *daemonHandler, log *logrus.Entry) {
	for {
		if handler.Paused() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		h, err := r.NextToProcess(ctx)
		if err != nil {
			return
		}
		ev := h.Event()
		if err := graph.Run(ctx, ev); err != nil {
			log.WithError(err).WithField("eventId", ev.ID()).Error("graph run")
			metrics.ObserveError("worker", "graph-run")
		}
		persistResults(ctx, graph, ev.ID(), sinks, log)
		r.DoneProcessing(h)
	}
}

func persistResults(ctx context.Context, graph *proc.Graph, eventID uint64, sinks *defaultSinks, log *logrus.Entry) {
	for _, n := range graph.Nodes() {
		if n.Hide() {
			continue
		}
		cache := graph.Cache(n.Name())
		res, err := cache.Item(ctx, eventID)
		if err != nil {
			continue
		}
		res.RLock()
		var werr error
		switch res.Kind {
		case proc.KindScalar:
			werr = sinks.scalars.WriteScalar(eventID, n.Name(), res.Value)
		default:
			werr = sinks.tables.WriteTable(eventID, res.Columns, res.Rows, res.Bins)
		}
		res.RUnlock()
		cache.Release(res)
		if werr != nil {
			log.WithError(werr).WithField("node", n.Name()).Error("persist result")
		}
	}
}

// runControlReader feeds stdin lines (§6.3) to the control surface.
func runControlReader(ctx context.Context, r io.Reader, surface *control.Surface, log *logrus.Entry) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cmd, err := control.ParseCommand(scanner.Text())
		if err != nil {
			log.WithError(err).Warn("malformed control command")
			continue
		}
		if err := surface.Dispatch(cmd); err != nil {
			log.WithError(err).WithField("command", cmd.Kind.String()).Error("control command failed")
		}
	}
}

// runShmDrain cycles the live-monitor server's non-blocking discovery and
// shuffle handling (§4.D "Server routine") on its own cadence.
func runShmDrain(ctx context.Context, server *liveServer, log *logrus.Entry) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := server.Drain(); err != nil {
				log.WithError(err).Error("shm drain")
			}
		}
	}
}
