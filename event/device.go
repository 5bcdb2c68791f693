// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package event

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// DeviceKind identifies one of the closed set of device slots an Event can
// carry. It is the tag of the Device variant union.
type DeviceKind int

// The complete set of device kinds a converter registry can populate.
const (
	Wavedigitizer DeviceKind = iota
	WavedigitizerTDC
	CommercialCamera
	MachineData
	PixelDetectorSet
	numDeviceKinds
)

func (k DeviceKind) String() string {
	switch k {
	case Wavedigitizer:
		return "Wavedigitizer"
	case WavedigitizerTDC:
		return "WavedigitizerTDC"
	case CommercialCamera:
		return "CommercialCamera"
	case MachineData:
		return "MachineData"
	case PixelDetectorSet:
		return "PixelDetectorSet"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// Device is the tagged-union member type. Every variant knows its own kind
// and carries an independent 16-bit wire version.
//
// Use sites are expected to switch exhaustively over Kind(); there is no
// dynamic downcast. A caller that asks an Event for a kind it does not hold
// gets ErrMissingDevice rather than a zero value, so partially decoded events
// cannot be mistaken for complete ones.
type Device interface {
	Kind() DeviceKind
	// Serialize writes a 16-bit version tag followed by the variant's fields.
	Serialize(w io.Writer) error
	// Deserialize reads the version tag written by Serialize and populates
	// the receiver's fields. It returns ErrVersionMismatch for an
	// unrecognized version.
	Deserialize(r io.Reader) error
}

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeF64(w io.Writer, v float64) error {
	return writeU64(w, math.Float64bits(v))
}

func readF64(r io.Reader) (float64, error) {
	u, err := readU64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
