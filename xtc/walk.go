// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package xtc

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/sirupsen/logrus"

	"github.com/lcls-lab/shotpipe/event"
)

// Result is what the walker decided about one node or the walk as a whole.
// The walker never panics or returns a Go error for per-event damage; it
// always resolves to one of these three outcomes and lets the caller decide
// what a Stop means for the event (bad vs. merely invalid).
type Result int

// The possible outcomes of a walk.
const (
	// Continue means every node visited so far decoded cleanly.
	Continue Result = iota
	// Stop means the walk hit unrecoverable damage or a malformed frame and
	// must abort; the caller discards or invalidates the event.
	Stop
	// SkipSubtree means one subtree was skipped (unknown type/version or a
	// converter-level error) but the walk otherwise continued.
	SkipSubtree
)

// ErrUnknownConverter is the sentinel a Dispatcher returns when no converter
// is registered for a (TypeID, Version) pair. The walker treats it
// differently from other dispatch errors only in that it is logged once per
// pair rather than once per event.
var ErrUnknownConverter = errors.New("shotpipe/xtc: no converter registered")

// Dispatcher hands a decoded, undamaged, uncompressed node to whatever
// converter is registered for its (TypeID, Version), populating ev. A
// converter registry is the only expected implementation.
type Dispatcher interface {
	Dispatch(h Header, payload []byte, ev *event.Event) error
}

type warnKey struct {
	t TypeID
	v uint16
}

// Walker performs the depth-first XTC traversal. It owns the decompression
// buffers and warn-once bookkeeping for one decode thread; it is not safe
// for concurrent use from multiple goroutines, matching the walker's
// single-threaded decode contract (§5: "Event decode is strictly serial").
type Walker struct {
	Log    *logrus.Entry
	warned map[warnKey]bool
}

// NewWalker returns a Walker that logs through log.
func NewWalker(log *logrus.Entry) *Walker {
	return &Walker{Log: log, warned: make(map[warnKey]bool)}
}

// Walk traverses root as a sequence of sibling nodes, dispatching each
// undamaged, uncompressed, non-container node to d and recursing into any
// container (TypeXtc) node's payload.
func (w *Walker) Walk(root []byte, d Dispatcher, ev *event.Event) Result {
	return w.walkSiblings(root, d, ev)
}

func (w *Walker) walkSiblings(buf []byte, d Dispatcher, ev *event.Event) Result {
	skipped := false
	for len(buf) > 0 {
		consumed, res := w.visitOne(buf, d, ev)
		switch res {
		case Stop:
			return Stop
		case SkipSubtree:
			skipped = true
		}
		buf = buf[consumed:]
	}
	if skipped {
		return SkipSubtree
	}
	return Continue
}

func (w *Walker) visitOne(buf []byte, d Dispatcher, ev *event.Event) (int, Result) {
	h, err := decodeHeader(buf)
	if err != nil {
		if w.Log != nil {
			w.Log.WithError(err).Error("xtc: malformed header")
		}
		return len(buf), Stop
	}
	end := HeaderSize + int(h.PayloadSize)
	if end > len(buf) {
		if w.Log != nil {
			w.Log.WithField("type", h.TypeID).Error("xtc: payload runs past end of buffer")
		}
		return len(buf), Stop
	}
	payload := buf[HeaderSize:end]

	if h.TypeID == TypeXtc {
		return end, w.walkSiblings(payload, d, ev)
	}

	if h.Compressed {
		inner, err := inflate(payload)
		if err != nil {
			if w.Log != nil {
				w.Log.WithError(err).WithField("type", h.TypeID).Error("xtc: decompress failed")
			}
			return end, Stop
		}
		_, res := w.visitOne(inner, d, ev)
		return end, res
	}

	if h.Damage != 0 {
		switch {
		case h.Damage.has(DroppedContribution):
			return end, Stop
		case h.Damage.has(IncompleteContribution):
			return end, Stop
		case h.Damage == UserDefined:
			// A user-defined-only flag doesn't prevent conversion.
		default:
			return end, Stop
		}
	}

	if err := d.Dispatch(h, payload, ev); err != nil {
		if errors.Is(err, ErrUnknownConverter) {
			key := warnKey{h.TypeID, h.Version}
			if !w.warned[key] {
				w.warned[key] = true
				if w.Log != nil {
					w.Log.WithFields(logrus.Fields{"type": h.TypeID, "version": h.Version}).Warn("xtc: unsupported type/version, skipping subtree")
				}
			}
		} else if w.Log != nil {
			w.Log.WithError(err).WithField("type", h.TypeID).WithField("event", ev.ID()).Error("xtc: converter failed")
		}
		return end, SkipSubtree
	}
	return end, Continue
}

// inflate decompresses a DEFLATE-compressed node payload into a freshly
// allocated buffer owned by this call; it is never shared across goroutines
// and is discarded once the node finishes processing.
func inflate(payload []byte) ([]byte, error) {
	zr := flate.NewReader(bytes.NewReader(payload))
	defer zr.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
