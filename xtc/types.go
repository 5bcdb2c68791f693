// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package xtc implements the recursive binary container walker for the
// inbound wire format: a self-describing tree of typed, possibly compressed,
// possibly damaged payloads (§4.B, §6.1 of the design).
package xtc

import "fmt"

// TypeID identifies the payload carried by one node. The wire format defines
// a closed set of roughly forty type ids; this build enumerates the subset
// the converter registry actually decodes, plus the container type and an
// explicit Unknown sentinel for anything else so dispatch stays exhaustive
// at the switch sites that matter.
type TypeID uint16

// The type ids this build recognizes on the wire.
const (
	TypeUnknown TypeID = iota
	// TypeXtc marks a container node: its payload is itself a sequence of
	// nodes and the walker recurses into it rather than dispatching it to a
	// converter.
	TypeXtc

	TypeWavedigitizerConfig
	TypeWavedigitizerData
	TypeWavedigitizerTDCConfig
	TypeWavedigitizerTDCData

	TypePNCCDConfig
	TypePNCCDFrame

	TypeCSPADConfig
	TypeCSPADElement

	TypeCameraConfig
	TypeCameraFrame

	TypeEpicsAddName
	TypeEpicsAddValue
	TypeBldData
)

func (t TypeID) String() string {
	switch t {
	case TypeXtc:
		return "Xtc"
	case TypeWavedigitizerConfig:
		return "WavedigitizerConfig"
	case TypeWavedigitizerData:
		return "WavedigitizerData"
	case TypeWavedigitizerTDCConfig:
		return "WavedigitizerTDCConfig"
	case TypeWavedigitizerTDCData:
		return "WavedigitizerTDCData"
	case TypePNCCDConfig:
		return "PNCCDConfig"
	case TypePNCCDFrame:
		return "PNCCDFrame"
	case TypeCSPADConfig:
		return "CSPADConfig"
	case TypeCSPADElement:
		return "CSPADElement"
	case TypeCameraConfig:
		return "CameraConfig"
	case TypeCameraFrame:
		return "CameraFrame"
	case TypeEpicsAddName:
		return "EpicsAddName"
	case TypeEpicsAddValue:
		return "EpicsAddValue"
	case TypeBldData:
		return "BldData"
	default:
		return fmt.Sprintf("TypeID(%d)", uint16(t))
	}
}

// SourceLevel is the source-level tag carried in a node's header.
type SourceLevel uint8

// The recognized source levels.
const (
	LevelSource SourceLevel = iota
	LevelReporter
	LevelController
	LevelUnknown
)

// PhysicalID packs a detector/device coordinate: which physical detector and
// instance, which logical device and instance within it.
type PhysicalID struct {
	Detector         uint8
	DetectorInstance uint8
	Device           uint8
	DeviceInstance   uint8
}

func (p PhysicalID) pack() uint32 {
	return uint32(p.Detector) | uint32(p.DetectorInstance)<<8 | uint32(p.Device)<<16 | uint32(p.DeviceInstance)<<24
}

func unpackPhysicalID(v uint32) PhysicalID {
	return PhysicalID{
		Detector:         uint8(v),
		DetectorInstance: uint8(v >> 8),
		Device:           uint8(v >> 16),
		DeviceInstance:   uint8(v >> 24),
	}
}

// String renders a PhysicalID as detector.instance-device.instance, a
// compact form usable both in log lines and as a synthesized instrument
// name when the wire format doesn't otherwise name one.
func (p PhysicalID) String() string {
	return fmt.Sprintf("%d.%d-%d.%d", p.Detector, p.DetectorInstance, p.Device, p.DeviceInstance)
}
