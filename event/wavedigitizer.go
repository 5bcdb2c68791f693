// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package event

import (
	"fmt"
	"io"
)

const wavedigitizerWireVersion = 1
const wavedigitizerTDCWireVersion = 1

// WavedigitizerChannel is one channel of a waveform digitizer, with its
// per-channel linear calibration: volts = raw*Gain - Offset.
type WavedigitizerChannel struct {
	Instrument   string
	Index        int
	SampleStep   float64 // seconds between samples
	Gain         float64
	Offset       float64
	HorizontalOffset float64
	Waveform     []int16
}

// WavedigitizerDevice holds the ordered channel set from one or more
// co-existing waveform digitizer instruments.
type WavedigitizerDevice struct {
	Channels []WavedigitizerChannel
}

// Kind implements Device.
func (d *WavedigitizerDevice) Kind() DeviceKind { return Wavedigitizer }

// Serialize implements Device.
func (d *WavedigitizerDevice) Serialize(w io.Writer) error {
	if err := writeU16(w, wavedigitizerWireVersion); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(d.Channels))); err != nil {
		return err
	}
	for _, c := range d.Channels {
		if err := writeString(w, c.Instrument); err != nil {
			return err
		}
		if err := writeU32(w, uint32(c.Index)); err != nil {
			return err
		}
		for _, f := range []float64{c.SampleStep, c.Gain, c.Offset, c.HorizontalOffset} {
			if err := writeF64(w, f); err != nil {
				return err
			}
		}
		if err := writeU32(w, uint32(len(c.Waveform))); err != nil {
			return err
		}
		for _, s := range c.Waveform {
			if err := writeU16(w, uint16(s)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize implements Device.
func (d *WavedigitizerDevice) Deserialize(r io.Reader) error {
	v, err := readU16(r)
	if err != nil {
		return err
	}
	if v != wavedigitizerWireVersion {
		return fmt.Errorf("%w: wavedigitizer version %d", ErrVersionMismatch, v)
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	chans := make([]WavedigitizerChannel, n)
	for i := range chans {
		c := &chans[i]
		if c.Instrument, err = readString(r); err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.Index = int(idx)
		vals := make([]float64, 4)
		for j := range vals {
			if vals[j], err = readF64(r); err != nil {
				return err
			}
		}
		c.SampleStep, c.Gain, c.Offset, c.HorizontalOffset = vals[0], vals[1], vals[2], vals[3]
		wn, err := readU32(r)
		if err != nil {
			return err
		}
		c.Waveform = make([]int16, wn)
		for j := range c.Waveform {
			s, err := readU16(r)
			if err != nil {
				return err
			}
			c.Waveform[j] = int16(s)
		}
	}
	d.Channels = chans
	return nil
}

// WavedigitizerTDCChannel carries an unordered sequence of hit times, in
// seconds, for one time-to-digital-converter channel.
type WavedigitizerTDCChannel struct {
	Instrument string
	Index      int
	HitTimes   []float64
}

// WavedigitizerTDCDevice holds the ordered channel set of a TDC digitizer.
type WavedigitizerTDCDevice struct {
	Channels []WavedigitizerTDCChannel
}

// Kind implements Device.
func (d *WavedigitizerTDCDevice) Kind() DeviceKind { return WavedigitizerTDC }

// Serialize implements Device.
func (d *WavedigitizerTDCDevice) Serialize(w io.Writer) error {
	if err := writeU16(w, wavedigitizerTDCWireVersion); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(d.Channels))); err != nil {
		return err
	}
	for _, c := range d.Channels {
		if err := writeString(w, c.Instrument); err != nil {
			return err
		}
		if err := writeU32(w, uint32(c.Index)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(c.HitTimes))); err != nil {
			return err
		}
		for _, t := range c.HitTimes {
			if err := writeF64(w, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize implements Device.
func (d *WavedigitizerTDCDevice) Deserialize(r io.Reader) error {
	v, err := readU16(r)
	if err != nil {
		return err
	}
	if v != wavedigitizerTDCWireVersion {
		return fmt.Errorf("%w: wavedigitizer-tdc version %d", ErrVersionMismatch, v)
	}
	n, err := readU32(r)
	if err != nil {
		return err
	}
	chans := make([]WavedigitizerTDCChannel, n)
	for i := range chans {
		c := &chans[i]
		if c.Instrument, err = readString(r); err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		c.Index = int(idx)
		hn, err := readU32(r)
		if err != nil {
			return err
		}
		c.HitTimes = make([]float64, hn)
		for j := range c.HitTimes {
			if c.HitTimes[j], err = readF64(r); err != nil {
				return err
			}
		}
	}
	d.Channels = chans
	return nil
}
