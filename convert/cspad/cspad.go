// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cspad converts CSPAD XTC nodes (§4.C "CSPAD data conversion"): 4
// quadrants of 8 two-asic sections each, iterated with a stateful section
// iterator and written contiguously into one linear frame of
// columns=2*194, rows=4*8*185.
package cspad

import (
	"encoding/binary"
	"fmt"

	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/xtc"
)

// Fixed CSPAD geometry.
const (
	AsicColumns      = 194
	SectionColumns   = 2 * AsicColumns
	SectionRows      = 185
	SectionsPerQuad  = 8
	Quadrants        = 4
	FrameColumns     = SectionColumns
	FrameRows        = Quadrants * SectionsPerQuad * SectionRows
	sectionPixels    = SectionColumns * SectionRows
	totalSections    = Quadrants * SectionsPerQuad
)

// Config carries nothing beyond the fixed geometry today; it exists so a
// configure transition has somewhere to land and future quadrant-mask
// config can be added without changing the converter's registration.
type Config struct {
	QuadrantMask uint8
}

// RegisterAll registers the CSPAD config and element converters.
func RegisterAll(reg *convreg.Registry) {
	reg.MustRegister(xtc.TypeCSPADConfig, 1, convertConfig)
	reg.MustRegister(xtc.TypeCSPADElement, 1, convertElement)
}

func convertConfig(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	var mask uint8
	if len(payload) >= 1 {
		mask = payload[0]
	}
	store.Put(xtc.TypeCSPADConfig, h.PhysicalID, Config{QuadrantMask: mask})
	return nil
}

// sectionIterator walks the wire payload section by section, in quadrant
// order then section-within-quadrant order, handing each a fixed-size
// window of the payload. This is the "stateful section iterator" the
// design calls for: callers advance it once per section rather than
// indexing the payload directly.
type sectionIterator struct {
	payload []byte
	pos     int
}

func (it *sectionIterator) next() ([]byte, bool) {
	if it.pos+sectionPixels*2 > len(it.payload) {
		return nil, false
	}
	s := it.payload[it.pos : it.pos+sectionPixels*2]
	it.pos += sectionPixels * 2
	return s, true
}

func convertElement(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	if _, ok := store.Get(xtc.TypeCSPADConfig, h.PhysicalID); !ok {
		return fmt.Errorf("shotpipe/cspad: element for %v arrived before its config", h.PhysicalID)
	}
	if len(payload) < totalSections*sectionPixels*2 {
		return fmt.Errorf("shotpipe/cspad: payload has %d bytes, want at least %d for %d sections", len(payload), totalSections*sectionPixels*2, totalSections)
	}
	frame := make([]uint32, FrameColumns*FrameRows)
	it := &sectionIterator{payload: payload}
	for q := 0; q < Quadrants; q++ {
		for s := 0; s < SectionsPerQuad; s++ {
			section, ok := it.next()
			if !ok {
				return fmt.Errorf("shotpipe/cspad: payload ran out at quadrant %d section %d", q, s)
			}
			rowBase := (q*SectionsPerQuad + s) * SectionRows
			for r := 0; r < SectionRows; r++ {
				dst := (rowBase + r) * FrameColumns
				src := r * SectionColumns * 2
				for c := 0; c < SectionColumns; c++ {
					frame[dst+c] = uint32(binary.LittleEndian.Uint16(section[src+2*c:]))
				}
			}
		}
	}

	dev, err := ev.Device(event.PixelDetectorSet)
	if err != nil {
		dev = event.NewCameraDevice(event.PixelDetectorSet)
		ev.SetDevice(dev)
	}
	cam := dev.(*event.CameraDevice)
	tileID, _ := store.CassID(xtc.TypeCSPADElement, h.PhysicalID)
	replaced := false
	for i := range cam.Detectors {
		if cam.Detectors[i].TileID == tileID {
			cam.Detectors[i] = event.PixelFrame{TileID: tileID, Columns: FrameColumns, Rows: FrameRows, Frame: frame, BitDepth: 16}
			replaced = true
			break
		}
	}
	if !replaced {
		cam.Detectors = append(cam.Detectors, event.PixelFrame{TileID: tileID, Columns: FrameColumns, Rows: FrameRows, Frame: frame, BitDepth: 16})
	}
	return nil
}
