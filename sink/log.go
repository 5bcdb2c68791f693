// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sink

import (
	"bufio"
	"fmt"
	"os"
)

// ScalarLogSink appends "eventId name value" lines to a flat file, the
// simplest concrete ScalarSink and the one cmd/shotpiped wires up by
// default for any PostProcessor not explicitly bound to a CBF writer.
type ScalarLogSink struct {
	f *os.File
	w *bufio.Writer
}

// NewScalarLogSink opens (creating/appending) path as a scalar log.
func NewScalarLogSink(path string) (*ScalarLogSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shotpipe/sink: open %s: %w", path, err)
	}
	return &ScalarLogSink{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteScalar implements ScalarSink.
func (s *ScalarLogSink) WriteScalar(eventID uint64, name string, value float64) error {
	_, err := fmt.Fprintf(s.w, "%d %s %g\n", eventID, name, value)
	return err
}

// Close flushes and closes the underlying file.
func (s *ScalarLogSink) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}

// TableLogSink appends one "eventId cols rows v0 v1 ..." line per Table
// result to a flat file.
type TableLogSink struct {
	f *os.File
	w *bufio.Writer
}

// NewTableLogSink opens (creating/appending) path as a table log.
func NewTableLogSink(path string) (*TableLogSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shotpipe/sink: open %s: %w", path, err)
	}
	return &TableLogSink{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteTable implements TableSink.
func (s *TableLogSink) WriteTable(eventID uint64, cols, rows int, bins []float64) error {
	if _, err := fmt.Fprintf(s.w, "%d %d %d", eventID, cols, rows); err != nil {
		return err
	}
	for _, v := range bins {
		if _, err := fmt.Fprintf(s.w, " %g", v); err != nil {
			return err
		}
	}
	_, err := s.w.WriteString("\n")
	return err
}

// Close flushes and closes the underlying file.
func (s *TableLogSink) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}
