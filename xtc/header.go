// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package xtc

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed, 16-byte-aligned size of a node header, in bytes.
// All multi-byte fields are little-endian.
const HeaderSize = 32

const (
	offTypeWord    = 0
	offDamage      = 4
	offLevel       = 8
	offPhysicalID  = 12
	offPayloadSize = 16

	typeIDMask     = 0x0000ffff
	versionShift   = 16
	versionMask    = 0x1fff
	compressedBit  = uint32(1) << 29
)

// Header is one node's decoded framing: what kind of payload follows, its
// wire version, whether it is compressed, how much damage (if any) upstream
// detected, and which physical detector/device produced it.
type Header struct {
	TypeID      TypeID
	Version     uint16
	Compressed  bool
	Damage      Damage
	Level       SourceLevel
	PhysicalID  PhysicalID
	PayloadSize uint32
}

// decodeHeader reads one HeaderSize-byte header from buf[0:HeaderSize].
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("shotpipe/xtc: truncated header: have %d bytes, need %d", len(buf), HeaderSize)
	}
	typeWord := binary.LittleEndian.Uint32(buf[offTypeWord:])
	damage := binary.LittleEndian.Uint32(buf[offDamage:])
	level := buf[offLevel]
	physID := binary.LittleEndian.Uint32(buf[offPhysicalID:])
	payloadSize := binary.LittleEndian.Uint32(buf[offPayloadSize:])

	return Header{
		TypeID:      TypeID(typeWord & typeIDMask),
		Version:     uint16((typeWord >> versionShift) & versionMask),
		Compressed:  typeWord&compressedBit != 0,
		Damage:      Damage(damage),
		Level:       SourceLevel(level),
		PhysicalID:  unpackPhysicalID(physID),
		PayloadSize: payloadSize,
	}, nil
}

// encodeHeader writes h into buf[0:HeaderSize]; used by tests and by any
// in-process producer that synthesizes XTC frames (e.g. the simulator).
func encodeHeader(buf []byte, h Header) {
	typeWord := uint32(h.TypeID) & typeIDMask
	typeWord |= (uint32(h.Version) & versionMask) << versionShift
	if h.Compressed {
		typeWord |= compressedBit
	}
	binary.LittleEndian.PutUint32(buf[offTypeWord:], typeWord)
	binary.LittleEndian.PutUint32(buf[offDamage:], uint32(h.Damage))
	buf[offLevel] = uint8(h.Level)
	buf[offLevel+1], buf[offLevel+2], buf[offLevel+3] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[offPhysicalID:], h.PhysicalID.pack())
	binary.LittleEndian.PutUint32(buf[offPayloadSize:], h.PayloadSize)
	for i := offPayloadSize + 4; i < HeaderSize; i++ {
		buf[i] = 0
	}
}
