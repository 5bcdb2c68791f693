// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package camera converts commercial-camera XTC nodes (§4.C "Commercial-camera
// data conversion"): the payload is already a linear frame, but its first
// eight pixels carry status information rather than image data and must be
// patched with the ninth pixel's value before the frame is usable.
package camera

import (
	"encoding/binary"
	"fmt"

	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/xtc"
)

// Config is one commercial camera's geometry.
type Config struct {
	Columns int
	Rows    int
	Offset  uint32 // subtracted from every pixel if non-zero
}

// RegisterAll registers the commercial-camera config and frame converters.
func RegisterAll(reg *convreg.Registry) {
	reg.MustRegister(xtc.TypeCameraConfig, 1, convertConfig)
	reg.MustRegister(xtc.TypeCameraFrame, 1, convertFrame)
}

func convertConfig(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	if len(payload) < 12 {
		return fmt.Errorf("shotpipe/camera: config payload too short: %d bytes", len(payload))
	}
	store.Put(xtc.TypeCameraConfig, h.PhysicalID, Config{
		Columns: int(binary.LittleEndian.Uint32(payload[0:4])),
		Rows:    int(binary.LittleEndian.Uint32(payload[4:8])),
		Offset:  binary.LittleEndian.Uint32(payload[8:12]),
	})
	return nil
}

const statusPixels = 8

func convertFrame(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	raw, ok := store.Get(xtc.TypeCameraConfig, h.PhysicalID)
	if !ok {
		return fmt.Errorf("shotpipe/camera: frame for %v arrived before its config", h.PhysicalID)
	}
	cfg := raw.(Config)
	want := cfg.Columns * cfg.Rows
	if len(payload) < 2*want {
		return fmt.Errorf("shotpipe/camera: frame payload has %d bytes, want %d", len(payload), 2*want)
	}
	frame := make([]uint32, want)
	for i := 0; i < want; i++ {
		frame[i] = uint32(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	if want > statusPixels {
		fill := frame[statusPixels]
		for i := 0; i < statusPixels; i++ {
			frame[i] = fill
		}
	}
	if cfg.Offset != 0 {
		for i := range frame {
			if frame[i] >= cfg.Offset {
				frame[i] -= cfg.Offset
			} else {
				frame[i] = 0
			}
		}
	}

	dev, err := ev.Device(event.CommercialCamera)
	if err != nil {
		dev = event.NewCameraDevice(event.CommercialCamera)
		ev.SetDevice(dev)
	}
	cam := dev.(*event.CameraDevice)
	tileID, _ := store.CassID(xtc.TypeCameraFrame, h.PhysicalID)
	cam.Detectors = appendOrReplace(cam.Detectors, event.PixelFrame{
		TileID:   tileID,
		Columns:  cfg.Columns,
		Rows:     cfg.Rows,
		Frame:    frame,
		BitDepth: 16,
	})
	return nil
}

func appendOrReplace(dets []event.PixelFrame, f event.PixelFrame) []event.PixelFrame {
	for i := range dets {
		if dets[i].TileID == f.TileID {
			dets[i] = f
			return dets
		}
	}
	return append(dets, f)
}
