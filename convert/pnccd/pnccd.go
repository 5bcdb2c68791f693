// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pnccd converts pnCCD configuration and frame XTC nodes into a
// pixel-detector slot on an Event. The frame conversion is the "hard path"
// called out in §4.C: four quarter-frame segments arrive in wire order and
// must be reassembled into one linear 2R×2C frame in a specific
// orientation, masking off the top two (non-data) bits of each 16-bit
// sample.
package pnccd

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/xtc"
)

// DefaultSegmentSize is the per-segment row/column count used when a
// detector's configuration hasn't told us otherwise, or disagrees with the
// fixed default in a way that would overflow the frame.
const DefaultSegmentSize = 512

// pixelMask strips the top two status bits HLL's firmware sets on each
// 14-bit sample.
const pixelMask = 0x3fff

// Config is one pnCCD detector's geometry, as published by a configure
// transition.
type Config struct {
	SegmentRows    int
	SegmentColumns int
	NumLinks       int
	CamexMagic     uint32
	Info           string
	TimingFile     string
}

func (c Config) rows() int    { return 2 * c.SegmentRows }
func (c Config) columns() int { return 2 * c.SegmentColumns }

// RegisterAll registers the pnCCD config converters (v1 and v2) and the
// frame converter on reg. log receives the fallback-to-default-geometry
// warning convertFrame logs when a config disagrees with DefaultSegmentSize
// (§4.C); it is captured by the registered closures since convreg.Converter
// itself carries no logger.
func RegisterAll(reg *convreg.Registry, log *logrus.Entry) {
	reg.MustRegister(xtc.TypePNCCDConfig, 1, convertConfigV1)
	reg.MustRegister(xtc.TypePNCCDConfig, 2, convertConfig)
	reg.MustRegister(xtc.TypePNCCDFrame, 1, func(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
		return convertFrame(h, payload, ev, store, log)
	})
}

// convertConfigV1 handles the older, smaller pnCCD config payload, which
// carries no explicit segment geometry; it applies DefaultSegmentSize
// directly, matching cass_pnccd's `case 1: rows = columns = default_size`
// branch.
func convertConfigV1(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	store.Put(xtc.TypePNCCDConfig, h.PhysicalID, Config{
		SegmentRows:    DefaultSegmentSize,
		SegmentColumns: DefaultSegmentSize,
	})
	return nil
}

func convertConfig(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	if len(payload) < 24 {
		return fmt.Errorf("shotpipe/pnccd: config payload too short: %d bytes", len(payload))
	}
	cfg := Config{
		SegmentRows:    int(binary.LittleEndian.Uint32(payload[0:4])),
		SegmentColumns: int(binary.LittleEndian.Uint32(payload[4:8])),
		NumLinks:       int(binary.LittleEndian.Uint32(payload[8:12])),
		CamexMagic:     binary.LittleEndian.Uint32(payload[12:16]),
	}
	info, rest := readLV(payload[16:])
	timing, _ := readLV(rest)
	cfg.Info = info
	cfg.TimingFile = timing
	store.Put(xtc.TypePNCCDConfig, h.PhysicalID, cfg)
	return nil
}

func readLV(b []byte) (string, []byte) {
	if len(b) < 4 {
		return "", nil
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if int(n) > len(b) {
		n = uint32(len(b))
	}
	return string(b[:n]), b[n:]
}

func convertFrame(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore, log *logrus.Entry) error {
	raw, ok := store.Get(xtc.TypePNCCDConfig, h.PhysicalID)
	if !ok {
		return fmt.Errorf("shotpipe/pnccd: frame for %v arrived before its config", h.PhysicalID)
	}
	cfg := raw.(Config)

	segRows, segCols := cfg.SegmentRows, cfg.SegmentColumns
	if segRows <= 0 || segCols <= 0 || segRows > DefaultSegmentSize || segCols > DefaultSegmentSize {
		if log != nil {
			log.WithFields(logrus.Fields{"physicalId": h.PhysicalID, "segmentRows": cfg.SegmentRows, "segmentColumns": cfg.SegmentColumns}).
				Error("pnccd: config segment size out of range, falling back to DefaultSegmentSize")
		}
		segRows, segCols = DefaultSegmentSize, DefaultSegmentSize
	}
	segSize := segRows * segCols
	needed := 4 * segSize * 2 // 4 segments, uint16 each
	if len(payload) < needed {
		if log != nil {
			log.WithFields(logrus.Fields{"physicalId": h.PhysicalID, "payloadBytes": len(payload), "neededBytes": needed}).
				Error("pnccd: frame payload too short for configured segment size, falling back to DefaultSegmentSize")
		}
		segRows, segCols = DefaultSegmentSize, DefaultSegmentSize
		segSize = segRows * segCols
		needed = 4 * segSize * 2
		if len(payload) < needed {
			return fmt.Errorf("shotpipe/pnccd: frame payload too short even at default segment size: %d bytes", len(payload))
		}
	}

	seg := make([][]uint16, 4)
	for i := 0; i < 4; i++ {
		s := make([]uint16, segSize)
		base := i * segSize * 2
		for j := 0; j < segSize; j++ {
			s[j] = binary.LittleEndian.Uint16(payload[base+2*j:])
		}
		seg[i] = s
	}

	rows, cols := 2*segRows, 2*segCols
	frame := make([]uint32, rows*cols)

	// Top half: row r takes segment 0 then segment 3, left to right.
	for r := 0; r < segRows; r++ {
		dst := r * cols
		src := r * segCols
		for c := 0; c < segCols; c++ {
			frame[dst+c] = uint32(seg[0][src+c] & pixelMask)
			frame[dst+segCols+c] = uint32(seg[3][src+c] & pixelMask)
		}
	}
	// Bottom half: row r (from the top of the bottom half) takes the
	// mirror image of segments 1 and 2, read back to front.
	for r := 0; r < segRows; r++ {
		dst := (segRows + r) * cols
		srcRow := segRows - 1 - r
		src := srcRow * segCols
		for c := 0; c < segCols; c++ {
			// reversed within the row as well as bottom-to-top
			frame[dst+c] = uint32(seg[1][src+segCols-1-c] & pixelMask)
			frame[dst+segCols+c] = uint32(seg[2][src+segCols-1-c] & pixelMask)
		}
	}

	dev, err := ev.Device(event.PixelDetectorSet)
	if err != nil {
		dev = event.NewCameraDevice(event.PixelDetectorSet)
		ev.SetDevice(dev)
	}
	cam := dev.(*event.CameraDevice)
	tileID, _ := store.CassID(xtc.TypePNCCDFrame, h.PhysicalID)
	replaceDetector(cam, event.PixelFrame{
		TileID:     tileID,
		Columns:    cols,
		Rows:       rows,
		Frame:      frame,
		BitDepth:   14,
		CamexMagic: cfg.CamexMagic,
		Info:       cfg.Info,
		TimingFile: cfg.TimingFile,
	})
	return nil
}

func replaceDetector(cam *event.CameraDevice, f event.PixelFrame) {
	for i := range cam.Detectors {
		if cam.Detectors[i].TileID == f.TileID {
			cam.Detectors[i] = f
			return
		}
	}
	cam.Detectors = append(cam.Detectors, f)
}
