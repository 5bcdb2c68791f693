// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package xtc

// Damage is the bitset a node's header carries describing detected upstream
// corruption. Only three bits have defined meaning; any other bit set is
// treated as an unrecoverable, unnamed form of damage.
type Damage uint32

// Named damage bits.
const (
	DroppedContribution    Damage = 1 << 0
	IncompleteContribution Damage = 1 << 1
	UserDefined            Damage = 1 << 2

	knownBits = DroppedContribution | IncompleteContribution | UserDefined
)

// HasOther reports whether any bit outside the named set is present.
func (d Damage) HasOther() bool { return d&^knownBits != 0 }

func (d Damage) has(bit Damage) bool { return d&bit != 0 }
