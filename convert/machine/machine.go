// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package machine converts accelerator and beamline machine-data XTC nodes
// (§4.C "Machine-data conversion"): EPICS process variables, which name
// themselves out-of-band from their values, beamline scalars, which don't,
// and the derived photon-energy/wavelength pair computed from two of the
// beamline scalars.
package machine

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/xtc"
)

// dbrType mirrors the EPICS DBR request-type tag prefixing an add-value
// payload: it says how to decode the bytes that follow, independent of
// whatever Go type the name ultimately gets stored as (always float64,
// per the design's single epics[name] map).
type dbrType uint8

const (
	dbrInt8 dbrType = iota
	dbrUint8
	dbrInt16
	dbrUint16
	dbrInt32
	dbrUint32
	dbrFloat32
	dbrFloat64
	dbrString
)

// nameTable holds the index-to-name mapping an EPICS add-name transition
// buffers for later add-value transitions to resolve against. It is process
// wide and keyed by nothing but the PV index, matching the wire format's own
// assumption that indices are stable for the run.
type nameTable struct {
	mu    sync.RWMutex
	names map[uint32]string
}

var epicsNames = &nameTable{names: make(map[uint32]string)}

func (t *nameTable) put(idx uint32, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[idx] = name
}

func (t *nameTable) get(idx uint32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.names[idx]
	return n, ok
}

// RegisterAll registers the EPICS name/value and beamline-data converters.
func RegisterAll(reg *convreg.Registry) {
	reg.MustRegister(xtc.TypeEpicsAddName, 1, convertAddName)
	reg.MustRegister(xtc.TypeEpicsAddValue, 1, convertAddValue)
	reg.MustRegister(xtc.TypeBldData, 1, convertBldData)
}

// convertAddName buffers an index-to-name mapping; it writes nothing to the
// event, since by itself it carries no shot data.
func convertAddName(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	if len(payload) < 4 {
		return fmt.Errorf("shotpipe/machine: add-name payload too short")
	}
	idx := binary.LittleEndian.Uint32(payload[0:4])
	name, _ := readLV(payload[4:])
	epicsNames.put(idx, name)
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

func machineDevice(ev *event.Event) *event.MachineDataDevice {
	dev, err := ev.Device(event.MachineData)
	if err != nil {
		md := event.NewMachineDataDevice()
		ev.SetDevice(md)
		return md
	}
	return dev.(*event.MachineDataDevice)
}

// convertAddValue looks the value's index up in the shared name table and,
// if known, decodes the value per its dbrType tag and writes it to
// md.Epics[name]. An index with no buffered name is silently dropped: the
// add-name transition for it may simply not have been seen yet this run.
func convertAddValue(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	if len(payload) < 5 {
		return fmt.Errorf("shotpipe/machine: add-value payload too short")
	}
	idx := binary.LittleEndian.Uint32(payload[0:4])
	name, ok := epicsNames.get(idx)
	if !ok {
		return nil
	}
	typ := dbrType(payload[4])
	v, err := decodeDBRValue(typ, payload[5:])
	if err != nil {
		return fmt.Errorf("shotpipe/machine: epics %q: %w", name, err)
	}
	md := machineDevice(ev)
	md.Epics[name] = v
	recomputeDerived(md)
	return nil
}

func decodeDBRValue(typ dbrType, b []byte) (float64, error) {
	switch typ {
	case dbrInt8:
		if len(b) < 1 {
			return 0, fmt.Errorf("short int8 value")
		}
		return float64(int8(b[0])), nil
	case dbrUint8:
		if len(b) < 1 {
			return 0, fmt.Errorf("short uint8 value")
		}
		return float64(b[0]), nil
	case dbrInt16:
		if len(b) < 2 {
			return 0, fmt.Errorf("short int16 value")
		}
		return float64(int16(binary.LittleEndian.Uint16(b))), nil
	case dbrUint16:
		if len(b) < 2 {
			return 0, fmt.Errorf("short uint16 value")
		}
		return float64(binary.LittleEndian.Uint16(b)), nil
	case dbrInt32:
		if len(b) < 4 {
			return 0, fmt.Errorf("short int32 value")
		}
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	case dbrUint32:
		if len(b) < 4 {
			return 0, fmt.Errorf("short uint32 value")
		}
		return float64(binary.LittleEndian.Uint32(b)), nil
	case dbrFloat32:
		if len(b) < 4 {
			return 0, fmt.Errorf("short float32 value")
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case dbrFloat64:
		if len(b) < 8 {
			return 0, fmt.Errorf("short float64 value")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case dbrString:
		return parseFloatString(string(b))
	default:
		return 0, fmt.Errorf("unknown dbr type %d", typ)
	}
}

func parseFloatString(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	if err != nil {
		return 0, fmt.Errorf("string value %q is not numeric: %w", s, err)
	}
	return v, nil
}

// convertBldData decodes a beamline-data transition: a flat, repeated
// {name, float64} sequence, each entry written to md.Beamline[name].
func convertBldData(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	md := machineDevice(ev)
	if len(payload) < 4 {
		return fmt.Errorf("shotpipe/machine: bld payload too short")
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	rest := payload[4:]
	for i := uint32(0); i < n; i++ {
		name, tail := readLV(rest)
		if len(tail) < 8 {
			return fmt.Errorf("shotpipe/machine: bld entry %d truncated", i)
		}
		md.Beamline[name] = math.Float64frombits(binary.LittleEndian.Uint64(tail[:8]))
		rest = tail[8:]
	}
	recomputeDerived(md)
	return nil
}

// hcInElectronVoltNanometers is Planck's constant times the speed of light,
// expressed so photon-energy-eV * wavelength-nm == this constant.
const hcInElectronVoltNanometers = 1239.84193

// recomputeDerived reapplies the LCLS SASE resonance estimate whenever a
// beamline write could have changed one of its two inputs. Per the design,
// a missing input leaves the previously computed values untouched rather
// than zeroing them.
func recomputeDerived(md *event.MachineDataDevice) {
	pkCurrent, ok1 := md.Beamline["EbeamPkCurrBC2"]
	l3EnergyMeV, ok2 := md.Beamline["EbeamL3Energy"]
	if !ok1 || !ok2 {
		return
	}
	l3EnergyGeV := 0.001 * l3EnergyMeV
	e1 := l3EnergyGeV - 0.0016293*pkCurrent - 0.0005*(0.63*l3EnergyGeV+0.0003*pkCurrent)
	energyEV := 44.42 * e1 * e1
	md.PhotonEnergyEV = energyEV
	if energyEV != 0 {
		md.WavelengthNM = hcInElectronVoltNanometers / energyEV
	}
}
