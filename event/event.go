// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package event defines the typed, self-contained shot record that flows
// through the rest of shotpipe: the Event itself, its datagram scratch
// buffer, and the closed set of typed Device variants a converter can
// populate.
package event

import (
	"fmt"
	"io"
)

// eventWireVersion is the version written ahead of the device list by
// Serialize. Bump it whenever the device-kind ordering or framing changes.
const eventWireVersion = 1

// Event is one shot's worth of decoded detector data.
//
// An Event is allocated once by the ring buffer's slot allocator with its
// datagram buffer pre-sized to the system-wide maximum datagram size, filled
// once by the decoder, read by every worker during processor traversal, and
// returned to the free pool once every worker and the live server have
// signalled done. Nothing may resize or free the datagram buffer across that
// lifetime, since converters hold views into it.
type Event struct {
	id       uint64
	datagram []byte
	used     int
	devices  map[DeviceKind]Device
	filename *string
}

// New allocates an Event whose datagram scratch buffer is pre-sized to
// maxDatagram bytes. The id starts at zero and no devices are installed; the
// converter registry installs devices during decode.
func New(maxDatagram int) *Event {
	return &Event{
		datagram: make([]byte, maxDatagram),
		devices:  make(map[DeviceKind]Device, numDeviceKinds),
	}
}

// ID returns the event's monotonic token.
func (e *Event) ID() uint64 { return e.id }

// SetID sets the event's monotonic token. Callers (the producer) must keep
// ids strictly increasing.
func (e *Event) SetID(id uint64) { e.id = id }

// Filename returns the borrowed origin tag, or nil for a live-stream event.
func (e *Event) Filename() *string { return e.filename }

// SetFilename sets the borrowed origin tag.
func (e *Event) SetFilename(name *string) { e.filename = name }

// Datagram returns the event's scratch buffer, truncated to the portion
// filled by the most recent decode. Converters use Grow to claim space
// within it and may keep views into the returned slice for the lifetime of
// processing; the backing array is never reallocated.
func (e *Event) Datagram() []byte { return e.datagram[:e.used] }

// Grow sets the used length of the datagram buffer to n and returns the
// first n bytes of the backing array, so a decoder can fill it from the front.
// It panics if n exceeds the buffer's fixed capacity — a caller asking for
// more than the system-wide maximum datagram size is a configuration error,
// not a runtime one.
func (e *Event) Grow(n int) []byte {
	if n > cap(e.datagram) {
		panic(fmt.Sprintf("shotpipe/event: datagram of %d bytes exceeds allocated capacity %d", n, cap(e.datagram)))
	}
	e.used = n
	return e.datagram[:n]
}

// Reset clears devices and id so the slot can be reused by the ring buffer
// without reallocating the datagram buffer.
func (e *Event) Reset() {
	e.id = 0
	e.used = 0
	e.filename = nil
	for k := range e.devices {
		delete(e.devices, k)
	}
}

// Device returns the device installed for kind, or ErrMissingDevice if the
// converter registry never populated it for this event.
func (e *Event) Device(kind DeviceKind) (Device, error) {
	d, ok := e.devices[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingDevice, kind)
	}
	return d, nil
}

// SetDevice installs a device, overwriting whatever that kind previously
// held. Only the converter registry calls this.
func (e *Event) SetDevice(d Device) {
	e.devices[d.Kind()] = d
}

// Kinds returns the set of device kinds currently installed, in a
// deterministic (kind-value) order.
func (e *Event) Kinds() []DeviceKind {
	out := make([]DeviceKind, 0, len(e.devices))
	for k := 0; k < int(numDeviceKinds); k++ {
		if _, ok := e.devices[DeviceKind(k)]; ok {
			out = append(out, DeviceKind(k))
		}
	}
	return out
}

// Serialize writes the event's wire version, then for each installed device
// (in DeviceKind order) a kind tag and the device's own version-prefixed
// payload. The datagram buffer itself is not serialized — only decoded
// devices are durable.
func (e *Event) Serialize(w io.Writer) error {
	if err := writeU16(w, eventWireVersion); err != nil {
		return err
	}
	if err := writeU64(w, e.id); err != nil {
		return err
	}
	kinds := e.Kinds()
	if err := writeU32(w, uint32(len(kinds))); err != nil {
		return err
	}
	for _, k := range kinds {
		if err := writeU16(w, uint16(k)); err != nil {
			return err
		}
		if err := e.devices[k].Serialize(w); err != nil {
			return fmt.Errorf("shotpipe/event: serialize %s: %w", k, err)
		}
	}
	return nil
}

// Deserialize reads an Event previously written by Serialize, replacing the
// receiver's id and device set. The datagram buffer is left untouched.
func (e *Event) Deserialize(r io.Reader) error {
	v, err := readU16(r)
	if err != nil {
		return err
	}
	if v != eventWireVersion {
		return fmt.Errorf("%w: event version %d", ErrVersionMismatch, v)
	}
	id, err := readU64(r)
	if err != nil {
		return err
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	devices := make(map[DeviceKind]Device, n)
	for i := uint32(0); i < n; i++ {
		kv, err := readU16(r)
		if err != nil {
			return err
		}
		kind := DeviceKind(kv)
		d, err := newZeroDevice(kind)
		if err != nil {
			return err
		}
		if err := d.Deserialize(r); err != nil {
			return fmt.Errorf("shotpipe/event: deserialize %s: %w", kind, err)
		}
		devices[kind] = d
	}
	e.id = id
	e.devices = devices
	return nil
}

func newZeroDevice(kind DeviceKind) (Device, error) {
	switch kind {
	case Wavedigitizer:
		return &WavedigitizerDevice{}, nil
	case WavedigitizerTDC:
		return &WavedigitizerTDCDevice{}, nil
	case CommercialCamera:
		return &CameraDevice{kind: CommercialCamera}, nil
	case PixelDetectorSet:
		return &CameraDevice{kind: PixelDetectorSet}, nil
	case MachineData:
		return &MachineDataDevice{}, nil
	default:
		return nil, fmt.Errorf("shotpipe/event: unknown device kind %d", kind)
	}
}
