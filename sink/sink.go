// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sink defines the abstract persistence contracts §4.I's CBF
// writer, scalar log, and table writer implement, and the concrete CBF
// writer itself. Keeping the contracts abstract lets a future file-replay
// input satisfy the same interface the live XTC input does, mirroring the
// way the teacher's conn/i2c and conn/spi packages expose a bus interface
// independent of the concrete host driver.
package sink

// FrameSink accepts a 2D frame (row-major float64 pixels, cols wide) tagged
// with an event id and persists it however the concrete sink chooses.
type FrameSink interface {
	WriteFrame(eventID uint64, cols, rows int, pixels []float64) error
	Close() error
}

// ScalarSink appends one named scalar value per event to a persisted log.
type ScalarSink interface {
	WriteScalar(eventID uint64, name string, value float64) error
	Close() error
}

// TableSink appends one Table result (a flat row-major slice of cols
// columns) per event to a persisted store.
type TableSink interface {
	WriteTable(eventID uint64, cols int, rows int, bins []float64) error
	Close() error
}
