// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command shotpiped is the shot-by-shot acquisition and analysis daemon: it
// reads delimited XTC datagrams from an input source, decodes them through
// the converter registry, runs the processor graph over every accepted
// event, persists results, fans live events out to the shared-memory
// monitor server, and exposes a line-oriented control surface plus a
// Prometheus metrics endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"net/http"

	"github.com/lcls-lab/shotpipe/config"
	"github.com/lcls-lab/shotpipe/control"
	"github.com/lcls-lab/shotpipe/convert/camera"
	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/convert/cspad"
	"github.com/lcls-lab/shotpipe/convert/machine"
	"github.com/lcls-lab/shotpipe/convert/pnccd"
	"github.com/lcls-lab/shotpipe/convert/wavedigitizer"
	"github.com/lcls-lab/shotpipe/proc"
	"github.com/lcls-lab/shotpipe/proc/ops"
	"github.com/lcls-lab/shotpipe/ring"
	"github.com/lcls-lab/shotpipe/sink"
	"github.com/lcls-lab/shotpipe/xtc"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "shotpiped: %s.\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	configPath := flag.String("config", "shotpipe.yaml", "path to the settings tree (§6.5)")
	input := flag.String("input", "-", "path to a length-prefixed XTC datagram stream, or - for stdin")
	partition := flag.String("partition", "0", "shared-memory partition tag (§4.D, §6.2)")
	workers := flag.Int("workers", 4, "number of symmetric processing workers")
	ringDepth := flag.Int("ring-depth", 8, "ring buffer capacity in events")
	maxDatagram := flag.Int("max-datagram", 1<<20, "largest datagram the ring pre-allocates for, in bytes")
	metricsAddr := flag.String("metrics-addr", ":9090", "address for the Prometheus /metrics endpoint")
	nEv := flag.Int("shm-n-ev", 64, "shared-memory event slot count (N_ev, §3.5)")
	slotSize := flag.Int("shm-slot-size", 1<<16, "shared-memory per-slot payload byte budget (B, §3.5)")
	shmEnable := flag.Bool("shm", true, "run the shared-memory live-monitor server")
	logLevel := flag.String("log-level", "info", "logrus level")
	flag.Parse()

	log := newLogger(*logLevel)

	tree, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := tree.ValidateKinds(ops.KnownKinds); err != nil {
		return fmt.Errorf("validate processor config: %w", err)
	}

	reg := convreg.New()
	wavedigitizer.RegisterAll(reg)
	pnccd.RegisterAll(reg, log.WithField("component", "convert.pnccd"))
	cspad.RegisterAll(reg)
	camera.RegisterAll(reg)
	machine.RegisterAll(reg)

	nodes, err := buildNodes(tree)
	if err != nil {
		return fmt.Errorf("build processor graph: %w", err)
	}
	graph, err := proc.NewGraph(nodes, *workers, log.WithField("component", "proc.graph"))
	if err != nil {
		return fmt.Errorf("assemble processor graph: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := control.NewMetrics(registry)
	go serveMetrics(*metricsAddr, registry, log)

	r := ring.New(*ringDepth, *maxDatagram, 1)
	walker := xtc.NewWalker(log.WithField("component", "xtc.walker"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := newDaemonHandler(graph, r, cancel, log.WithField("component", "control.handler"))
	surface := control.NewSurface(log.WithField("component", "control"), handler)

	var server *liveServer
	if *shmEnable {
		server, err = newShmServer(log.WithField("component", "shm.server"), *partition, *nEv, 8, *slotSize)
		if err != nil {
			return fmt.Errorf("start shared-memory server: %w", err)
		}
		defer server.Close()
	}

	sinks, err := newDefaultSinks("shotpipe-out")
	if err != nil {
		return fmt.Errorf("open result sinks: %w", err)
	}
	defer sinks.Close()

	in, closeInput, err := openInput(*input)
	if err != nil {
		return fmt.Errorf("open input %s: %w", *input, err)
	}
	defer closeInput()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runInput(ctx, in, r, walker, reg, server, log.WithField("component", "input"))
	}()

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(ctx, id, r, graph, sinks, metrics, handler, log.WithField("component", "worker"))
		}(i)
	}

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runShmDrain(ctx, server, log.WithField("component", "shm.drain"))
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runControlReader(ctx, os.Stdin, surface, log.WithField("component", "control"))
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("received termination signal, shutting down")
	case <-ctx.Done():
		log.Info("quit requested, shutting down")
	}

	cancel()
	r.Close()
	wg.Wait()
	return nil
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return logrus.NewEntry(l)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).WithField("component", "metrics").Error("metrics server exited")
	}
}

// buildNodes constructs every PostProcessor entry config can express
// generically. Entries whose kind isn't in ops.NewFromConfig's switch would
// have already been rejected by ValidateKinds.
func buildNodes(tree *config.Tree) ([]proc.Node, error) {
	nodes := make([]proc.Node, 0, len(tree.PostProcessor))
	for name, n := range tree.PostProcessor {
		node, err := ops.NewFromConfig(name, n)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// defaultSinks is the persistence fan-out every worker writes a node's
// published result to, keyed by the node's own Kind (§4.I): Scalar results
// go to a flat log, Array1D/Array2D/Table results go to a flat table log.
// CBFFrameWriter is not reachable through NewFromConfig, so this daemon
// writes no CBF frames; Array2D results go to the table log like any other
// non-scalar result.
type defaultSinks struct {
	scalars sink.ScalarSink
	tables  sink.TableSink
}

func newDefaultSinks(baseName string) (*defaultSinks, error) {
	scalars, err := sink.NewScalarLogSink(baseName + "-scalars.log")
	if err != nil {
		return nil, err
	}
	tables, err := sink.NewTableLogSink(baseName + "-tables.log")
	if err != nil {
		scalars.Close()
		return nil, err
	}
	return &defaultSinks{scalars: scalars, tables: tables}, nil
}

func (s *defaultSinks) Close() {
	s.scalars.Close()
	s.tables.Close()
}
