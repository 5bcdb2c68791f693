// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// CBFWriter implements FrameSink against CBF (Crystallographic Binary
// Format) files compressed with the byte-offset algorithm, one file per
// accepted event named "<base>_<eventid>.cbf" (§4.G "CBF writer", §6.4).
//
// Files are rotated into lettered subdirectories every RotateEvery files so
// a long run doesn't dump tens of thousands of files into one directory;
// the counter advances a..z, then aa..az, the way a spreadsheet names
// columns.
type CBFWriter struct {
	Log          *logrus.Entry
	BaseName     string
	Dir          string
	RotateEvery  int
	DarkBaseName string

	written     int
	subdirIndex int
	darkRef     *frameRef
}

type frameRef struct {
	cols, rows int
	pixels     []float64
}

// NewCBFWriter constructs a writer rooted at dir, naming files
// "<baseName>_<eventid>.cbf". rotateEvery <= 0 disables subdirectory
// rotation.
func NewCBFWriter(log *logrus.Entry, dir, baseName string, rotateEvery int) *CBFWriter {
	return &CBFWriter{Log: log, BaseName: baseName, Dir: dir, RotateEvery: rotateEvery}
}

// WriteFrame encodes pixels (row-major, rounded to int32 per the CBF
// element type) as a byte-offset-compressed CBF file and writes it under
// the writer's current rotation subdirectory.
func (w *CBFWriter) WriteFrame(eventID uint64, cols, rows int, pixels []float64) error {
	dir := w.currentDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("shotpipe/sink: mkdir %s: %w", dir, err)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_%d.cbf", w.BaseName, eventID))
	if err := writeCBFFile(name, cols, rows, pixels); err != nil {
		return err
	}
	w.darkRef = &frameRef{cols: cols, rows: rows, pixels: pixels}
	w.written++
	if w.Log != nil {
		w.Log.WithFields(logrus.Fields{"component": "sink.cbf", "eventId": eventID, "file": name}).Debug("wrote frame")
	}
	return nil
}

// Close emits "<base>_Dark.cbf" from the last frame seen, the secondary
// reference §4.G's CBF writer names on shutdown.
func (w *CBFWriter) Close() error {
	if w.darkRef == nil {
		return nil
	}
	name := filepath.Join(w.Dir, fmt.Sprintf("%s_Dark.cbf", w.darkBaseNameOrDefault()))
	return writeCBFFile(name, w.darkRef.cols, w.darkRef.rows, w.darkRef.pixels)
}

func (w *CBFWriter) darkBaseNameOrDefault() string {
	if w.DarkBaseName != "" {
		return w.DarkBaseName
	}
	return w.BaseName
}

func (w *CBFWriter) currentDir() string {
	if w.RotateEvery <= 0 {
		return w.Dir
	}
	if w.written > 0 && w.written%w.RotateEvery == 0 {
		w.subdirIndex++
	}
	return filepath.Join(w.Dir, letterCounter(w.subdirIndex))
}

// letterCounter renders n (0-based) the way a spreadsheet names columns:
// 0->"a", 25->"z", 26->"aa", matching the rotation counter's "advancing an
// alphabetic counter" wording.
func letterCounter(n int) string {
	if n < 0 {
		n = 0
	}
	var letters []byte
	n++
	for n > 0 {
		n--
		letters = append([]byte{byte('a' + n%26)}, letters...)
		n /= 26
	}
	return string(letters)
}

func writeCBFFile(name string, cols, rows int, pixels []float64) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("shotpipe/sink: create %s: %w", name, err)
	}
	defer f.Close()
	return encodeCBF(f, cols, rows, pixels)
}

// encodeCBF writes a minimal CBF container: a text header declaring the
// element type and compression scheme, followed by the byte-offset
// compressed binary payload.
func encodeCBF(w io.Writer, cols, rows int, pixels []float64) error {
	values := make([]int32, len(pixels))
	for i, v := range pixels {
		values[i] = int32(v)
	}
	payload := byteOffsetEncode(values)

	header := fmt.Sprintf(
		"###CBF: shotpipe-generated\n"+
			"\n--CIF-BINARY-FORMAT-SECTION--\n"+
			"Content-Type: application/octet-stream\n"+
			"Content-Transfer-Encoding: BINARY\n"+
			"X-Binary-Size: %d\n"+
			"X-Binary-Element-Type: \"signed 32-bit integer\"\n"+
			"X-Binary-Element-Byte-Order: LITTLE_ENDIAN\n"+
			"X-Binary-Size-Fastest-Dimension: %d\n"+
			"X-Binary-Size-Second-Dimension: %d\n"+
			"conversions=\"x-CBF_BYTE_OFFSET\"\n"+
			"\n",
		len(payload), cols, rows,
	)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// byteOffsetEncode implements the CBF byte-offset compression scheme: each
// value is delta-coded against the previous one (0 initially), and encoded
// in the narrowest of int8/int16/int32 that holds it, escaped by the
// narrower width's most negative value acting as a "read the next wider
// width" sentinel.
func byteOffsetEncode(values []int32) []byte {
	var buf bytes.Buffer
	var prev int32
	for _, v := range values {
		delta := v - prev
		prev = v
		switch {
		case delta >= -127 && delta <= 127:
			buf.WriteByte(byte(int8(delta)))
		case delta >= -32767 && delta <= 32767:
			buf.WriteByte(0x80)
			writeLE16(&buf, int16(delta))
		default:
			buf.WriteByte(0x80)
			writeLE16(&buf, -32768)
			writeLE32(&buf, delta)
		}
	}
	return buf.Bytes()
}

func writeLE16(buf *bytes.Buffer, v int16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}

func writeLE32(buf *bytes.Buffer, v int32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}
