// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package control

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsObserveErrorIncrementsByLabel(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveError("proc", "timeout")
	m.ObserveError("proc", "timeout")
	m.ObserveError("shm", "write-failed")

	got := &dto.Metric{}
	if err := m.Errors.WithLabelValues("proc", "timeout").Write(got); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got.Counter.GetValue() != 2 {
		t.Fatalf("expected 2 proc/timeout errors, got %v", got.Counter.GetValue())
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveError("proc", "timeout")
	m.SetRingOccupancy(3)
	m.ObserveForfeitedSlot()
}

func TestMetricsRingOccupancyTracksSetValue(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetRingOccupancy(7)

	got := &dto.Metric{}
	if err := m.RingOccupancy.Write(got); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got.Gauge.GetValue() != 7 {
		t.Fatalf("expected ring occupancy 7, got %v", got.Gauge.GetValue())
	}
}
