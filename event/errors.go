// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package event

import "errors"

// Sentinel errors surfaced by Event and the Device variants.
var (
	// ErrMissingDevice is returned by Event.Device when the converter
	// registry never populated the requested kind during decode.
	ErrMissingDevice = errors.New("shotpipe/event: missing device")
	// ErrVersionMismatch is returned by Deserialize when a device's wire
	// version tag isn't one this build knows how to read.
	ErrVersionMismatch = errors.New("shotpipe/event: version mismatch")
)
