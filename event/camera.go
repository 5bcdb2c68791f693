// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package event

import (
	"fmt"
	"io"
)

const cameraWireVersion = 1

// PixelFrame is one physical detector's linearized intensity frame. The
// frame is stored contiguously regardless of the detector's physical tile
// layout; a converter is responsible for the tile-to-linear remapping before
// it ever reaches here.
type PixelFrame struct {
	TileID     int
	Columns    int
	Rows       int
	Frame      []uint32 // holds both 16-bit and 32-bit source depths
	BitDepth   int       // 16 or 32, source sample width before widening
	CamexMagic uint32
	Info       string
	TimingFile string
}

// CameraDevice backs both CommercialCamera and PixelDetectorSet: a dense,
// zero-based set of detector tiles sharing one on-wire shape. The Kind field
// distinguishes which of the two enum slots this value occupies; the wire
// layout is identical.
type CameraDevice struct {
	kind      DeviceKind
	Detectors []PixelFrame
}

// NewCameraDevice constructs an empty device for the given camera-family
// kind (CommercialCamera or PixelDetectorSet).
func NewCameraDevice(kind DeviceKind) *CameraDevice {
	return &CameraDevice{kind: kind}
}

// Kind implements Device.
func (d *CameraDevice) Kind() DeviceKind { return d.kind }

// Serialize implements Device.
func (d *CameraDevice) Serialize(w io.Writer) error {
	if err := writeU16(w, cameraWireVersion); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(d.Detectors))); err != nil {
		return err
	}
	for _, det := range d.Detectors {
		if err := writeU32(w, uint32(det.TileID)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(det.Columns)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(det.Rows)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(det.BitDepth)); err != nil {
			return err
		}
		if err := writeU32(w, det.CamexMagic); err != nil {
			return err
		}
		if err := writeString(w, det.Info); err != nil {
			return err
		}
		if err := writeString(w, det.TimingFile); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(det.Frame))); err != nil {
			return err
		}
		for _, p := range det.Frame {
			if err := writeU32(w, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize implements Device.
func (d *CameraDevice) Deserialize(r io.Reader) error {
	v, err := readU16(r)
	if err != nil {
		return err
	}
	if v != cameraWireVersion {
		return fmt.Errorf("%w: camera version %d", ErrVersionMismatch, v)
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	dets := make([]PixelFrame, n)
	for i := range dets {
		det := &dets[i]
		vals := make([]uint32, 5)
		for j := range vals {
			if vals[j], err = readU32(r); err != nil {
				return err
			}
		}
		det.TileID, det.Columns, det.Rows, det.BitDepth = int(vals[0]), int(vals[1]), int(vals[2]), int(vals[3])
		det.CamexMagic = vals[4]
		if det.Info, err = readString(r); err != nil {
			return err
		}
		if det.TimingFile, err = readString(r); err != nil {
			return err
		}
		fn, err := readU32(r)
		if err != nil {
			return err
		}
		det.Frame = make([]uint32, fn)
		for j := range det.Frame {
			if det.Frame[j], err = readU32(r); err != nil {
				return err
			}
		}
	}
	d.Detectors = dets
	return nil
}

// Detector returns the detector with the given dense tile id.
func (d *CameraDevice) Detector(tileID int) (*PixelFrame, error) {
	for i := range d.Detectors {
		if d.Detectors[i].TileID == tileID {
			return &d.Detectors[i], nil
		}
	}
	return nil, fmt.Errorf("shotpipe/event: no detector with tile id %d", tileID)
}
