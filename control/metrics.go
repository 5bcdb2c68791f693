// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package control

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the per-event counters §7 requires on the control
// surface: an error counter broken out by component and error kind, a
// ring-buffer occupancy gauge, and a counter for shared-memory slots
// dropped because no free slot was available.
type Metrics struct {
	Errors         *prometheus.CounterVec
	RingOccupancy  prometheus.Gauge
	ForfeitedSlots prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against reg. Callers typically
// pass prometheus.NewRegistry() rather than the global DefaultRegisterer so
// tests can construct independent Metrics instances without collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shotpipe",
			Name:      "errors_total",
			Help:      "Count of errors observed, by component and error kind.",
		}, []string{"component", "kind"}),
		RingOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shotpipe",
			Name:      "ring_occupancy",
			Help:      "Number of ring slots currently filled or in flight.",
		}),
		ForfeitedSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shotpipe",
			Name:      "shm_forfeited_slots_total",
			Help:      "Count of L1-accept events dropped because no free shared-memory slot was available.",
		}),
	}
	reg.MustRegister(m.Errors, m.RingOccupancy, m.ForfeitedSlots)
	return m
}

// ObserveError increments the error counter for the given component and
// error kind. Nil-safe so callers can hold a *Metrics that may not have
// been wired (e.g. in tests that don't care about metrics).
func (m *Metrics) ObserveError(component, kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component, kind).Inc()
}

// SetRingOccupancy records the ring buffer's current filled-slot count.
func (m *Metrics) SetRingOccupancy(n int) {
	if m == nil {
		return
	}
	m.RingOccupancy.Set(float64(n))
}

// ObserveForfeitedSlot records one L1-accept event dropped for lack of a
// free shared-memory slot (§4.D's silent-drop-on-back-pressure rule).
func (m *Metrics) ObserveForfeitedSlot() {
	if m == nil {
		return
	}
	m.ForfeitedSlots.Inc()
}
