// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package xtc

import (
	"bytes"
	"compress/flate"
	"testing"

	"github.com/lcls-lab/shotpipe/event"
)

// encodeNode appends a HeaderSize header plus payload to buf.
func encodeNode(buf []byte, h Header, payload []byte) []byte {
	h.PayloadSize = uint32(len(payload))
	hb := make([]byte, HeaderSize)
	encodeHeader(hb, h)
	buf = append(buf, hb...)
	buf = append(buf, payload...)
	return buf
}

type fakeDispatcher struct {
	calls []Header
	err   error
}

func (f *fakeDispatcher) Dispatch(h Header, payload []byte, ev *event.Event) error {
	f.calls = append(f.calls, h)
	return f.err
}

func TestWalkSimpleDispatch(t *testing.T) {
	var buf []byte
	buf = encodeNode(buf, Header{TypeID: TypeCameraFrame}, []byte{1, 2, 3, 4})
	d := &fakeDispatcher{}
	w := NewWalker(nil)
	ev := event.New(64)
	if res := w.Walk(buf, d, ev); res != Continue {
		t.Fatalf("Walk() = %v, want Continue", res)
	}
	if len(d.calls) != 1 || d.calls[0].TypeID != TypeCameraFrame {
		t.Fatalf("dispatch calls = %+v", d.calls)
	}
}

func TestWalkContainerRecurses(t *testing.T) {
	var inner []byte
	inner = encodeNode(inner, Header{TypeID: TypeWavedigitizerData}, []byte{9})
	inner = encodeNode(inner, Header{TypeID: TypeCameraFrame}, []byte{8})
	var buf []byte
	buf = encodeNode(buf, Header{TypeID: TypeXtc}, inner)
	d := &fakeDispatcher{}
	w := NewWalker(nil)
	if res := w.Walk(buf, d, event.New(64)); res != Continue {
		t.Fatalf("Walk() = %v, want Continue", res)
	}
	if len(d.calls) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(d.calls))
	}
}

func TestWalkDroppedContributionStops(t *testing.T) {
	var buf []byte
	buf = encodeNode(buf, Header{TypeID: TypeCameraFrame, Damage: DroppedContribution}, []byte{1})
	d := &fakeDispatcher{}
	w := NewWalker(nil)
	if res := w.Walk(buf, d, event.New(64)); res != Stop {
		t.Fatalf("Walk() = %v, want Stop", res)
	}
	if len(d.calls) != 0 {
		t.Error("dispatcher should not have been called for a dropped contribution")
	}
}

func TestWalkUserDefinedDamageProceeds(t *testing.T) {
	var buf []byte
	buf = encodeNode(buf, Header{TypeID: TypeCameraFrame, Damage: UserDefined}, []byte{1})
	d := &fakeDispatcher{}
	w := NewWalker(nil)
	if res := w.Walk(buf, d, event.New(64)); res != Continue {
		t.Fatalf("Walk() = %v, want Continue", res)
	}
	if len(d.calls) != 1 {
		t.Error("dispatcher should have been called despite user-defined damage")
	}
}

func TestWalkUnknownConverterSkipsSubtree(t *testing.T) {
	var buf []byte
	buf = encodeNode(buf, Header{TypeID: TypeCameraFrame}, []byte{1})
	buf = encodeNode(buf, Header{TypeID: TypeWavedigitizerData}, []byte{2})
	d := &fakeDispatcher{err: ErrUnknownConverter}
	w := NewWalker(nil)
	if res := w.Walk(buf, d, event.New(64)); res != SkipSubtree {
		t.Fatalf("Walk() = %v, want SkipSubtree", res)
	}
	if len(d.calls) != 2 {
		t.Fatalf("expected both nodes visited despite unknown converter, got %d", len(d.calls))
	}
}

func TestWalkCompressedNode(t *testing.T) {
	var inner []byte
	inner = encodeNode(inner, Header{TypeID: TypeCameraFrame}, []byte{1, 2, 3})

	var zbuf bytes.Buffer
	zw, err := flate.NewWriter(&zbuf, flate.BestSpeed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Write(inner); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	var buf []byte
	buf = encodeNode(buf, Header{TypeID: TypeCameraFrame, Compressed: true}, zbuf.Bytes())
	d := &fakeDispatcher{}
	w := NewWalker(nil)
	if res := w.Walk(buf, d, event.New(64)); res != Continue {
		t.Fatalf("Walk() = %v, want Continue", res)
	}
	if len(d.calls) != 1 {
		t.Fatalf("expected 1 dispatch after decompression, got %d", len(d.calls))
	}
}
