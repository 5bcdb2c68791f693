// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package event

import (
	"fmt"
	"io"
)

const machineDataWireVersion = 1

// MachineDataDevice holds accelerator and beamline readbacks for one shot:
// two keyed maps plus the photon-energy/wavelength values derived from them
// by the machine-data converter.
//
// Units are preserved verbatim from the wire; this type does not assert what
// unit any given keyed value is in.
type MachineDataDevice struct {
	Beamline map[string]float64
	Epics    map[string]float64

	PhotonEnergyEV float64
	WavelengthNM   float64
}

// NewMachineDataDevice returns an empty device with initialized maps.
func NewMachineDataDevice() *MachineDataDevice {
	return &MachineDataDevice{
		Beamline: make(map[string]float64),
		Epics:    make(map[string]float64),
	}
}

// Kind implements Device.
func (d *MachineDataDevice) Kind() DeviceKind { return MachineData }

func writeFloatMap(w io.Writer, m map[string]float64) error {
	if err := writeU32(w, uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeF64(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readFloatMap(r io.Reader) (map[string]float64, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]float64, n)
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readF64(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// Serialize implements Device.
func (d *MachineDataDevice) Serialize(w io.Writer) error {
	if err := writeU16(w, machineDataWireVersion); err != nil {
		return err
	}
	if err := writeFloatMap(w, d.Beamline); err != nil {
		return err
	}
	if err := writeFloatMap(w, d.Epics); err != nil {
		return err
	}
	if err := writeF64(w, d.PhotonEnergyEV); err != nil {
		return err
	}
	return writeF64(w, d.WavelengthNM)
}

// Deserialize implements Device.
func (d *MachineDataDevice) Deserialize(r io.Reader) error {
	v, err := readU16(r)
	if err != nil {
		return err
	}
	if v != machineDataWireVersion {
		return fmt.Errorf("%w: machine-data version %d", ErrVersionMismatch, v)
	}
	if d.Beamline, err = readFloatMap(r); err != nil {
		return err
	}
	if d.Epics, err = readFloatMap(r); err != nil {
		return err
	}
	if d.PhotonEnergyEV, err = readF64(r); err != nil {
		return err
	}
	if d.WavelengthNM, err = readF64(r); err != nil {
		return err
	}
	return nil
}
