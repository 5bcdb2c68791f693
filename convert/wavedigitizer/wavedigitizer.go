// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package wavedigitizer converts waveform-digitizer and time-to-digital
// converter XTC nodes (§3.2, §4.C) into the Wavedigitizer and
// WavedigitizerTDC device slots.
package wavedigitizer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lcls-lab/shotpipe/convert/convreg"
	"github.com/lcls-lab/shotpipe/event"
	"github.com/lcls-lab/shotpipe/xtc"
)

// Config is one digitizer instrument's per-channel calibration, published by
// a configure transition and consulted by the data converter to know the
// expected waveform length.
type Config struct {
	Instrument string
	NumSamples int
	Channels   []ChannelConfig
}

// ChannelConfig is one channel's static calibration.
type ChannelConfig struct {
	SampleStep       float64
	Gain             float64
	Offset           float64
	HorizontalOffset float64
}

// RegisterAll registers the waveform-digitizer and TDC converters.
func RegisterAll(reg *convreg.Registry) {
	reg.MustRegister(xtc.TypeWavedigitizerConfig, 1, convertConfig)
	reg.MustRegister(xtc.TypeWavedigitizerData, 1, convertData)
	reg.MustRegister(xtc.TypeWavedigitizerTDCConfig, 1, convertTDCConfig)
	reg.MustRegister(xtc.TypeWavedigitizerTDCData, 1, convertTDCData)
}

func convertConfig(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	if len(payload) < 8 {
		return fmt.Errorf("shotpipe/wavedigitizer: config payload too short")
	}
	numSamples := int(binary.LittleEndian.Uint32(payload[0:4]))
	numChannels := int(binary.LittleEndian.Uint32(payload[4:8]))
	off := 8
	channels := make([]ChannelConfig, numChannels)
	for i := range channels {
		if off+32 > len(payload) {
			return fmt.Errorf("shotpipe/wavedigitizer: config payload truncated at channel %d", i)
		}
		channels[i] = ChannelConfig{
			SampleStep:       math.Float64frombits(binary.LittleEndian.Uint64(payload[off:])),
			Gain:             math.Float64frombits(binary.LittleEndian.Uint64(payload[off+8:])),
			Offset:           math.Float64frombits(binary.LittleEndian.Uint64(payload[off+16:])),
			HorizontalOffset: math.Float64frombits(binary.LittleEndian.Uint64(payload[off+24:])),
		}
		off += 32
	}
	store.Put(xtc.TypeWavedigitizerConfig, h.PhysicalID, Config{
		Instrument: h.PhysicalID.String(),
		NumSamples: numSamples,
		Channels:   channels,
	})
	return nil
}

func convertData(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	raw, ok := store.Get(xtc.TypeWavedigitizerConfig, h.PhysicalID)
	if !ok {
		return fmt.Errorf("shotpipe/wavedigitizer: data for %v arrived before its config", h.PhysicalID)
	}
	cfg := raw.(Config)

	dev, err := ev.Device(event.Wavedigitizer)
	var wd *event.WavedigitizerDevice
	if err != nil {
		wd = &event.WavedigitizerDevice{}
		ev.SetDevice(wd)
	} else {
		wd = dev.(*event.WavedigitizerDevice)
	}

	off := 0
	for idx, cc := range cfg.Channels {
		need := cfg.NumSamples * 2
		if off+need > len(payload) {
			return fmt.Errorf("shotpipe/wavedigitizer: payload truncated at channel %d", idx)
		}
		wf := make([]int16, cfg.NumSamples)
		for i := range wf {
			wf[i] = int16(binary.LittleEndian.Uint16(payload[off+2*i:]))
		}
		off += need
		wd.Channels = append(wd.Channels, event.WavedigitizerChannel{
			Instrument:       cfg.Instrument,
			Index:            idx,
			SampleStep:       cc.SampleStep,
			Gain:             cc.Gain,
			Offset:           cc.Offset,
			HorizontalOffset: cc.HorizontalOffset,
			Waveform:         wf,
		})
	}
	return nil
}

// TDCConfig carries nothing beyond the wire presence of the transition
// today; TDC channels have no per-channel calibration to capture.
type TDCConfig struct {
	NumChannels int
}

func convertTDCConfig(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	var n int
	if len(payload) >= 4 {
		n = int(binary.LittleEndian.Uint32(payload[0:4]))
	}
	store.Put(xtc.TypeWavedigitizerTDCConfig, h.PhysicalID, TDCConfig{NumChannels: n})
	return nil
}

func convertTDCData(h xtc.Header, payload []byte, ev *event.Event, store *convreg.ConfigStore) error {
	raw, ok := store.Get(xtc.TypeWavedigitizerTDCConfig, h.PhysicalID)
	if !ok {
		return fmt.Errorf("shotpipe/wavedigitizer: tdc data for %v arrived before its config", h.PhysicalID)
	}
	cfg := raw.(TDCConfig)

	dev, err := ev.Device(event.WavedigitizerTDC)
	var td *event.WavedigitizerTDCDevice
	if err != nil {
		td = &event.WavedigitizerTDCDevice{}
		ev.SetDevice(td)
	} else {
		td = dev.(*event.WavedigitizerTDCDevice)
	}

	off := 0
	for ch := 0; ch < cfg.NumChannels; ch++ {
		if off+4 > len(payload) {
			return fmt.Errorf("shotpipe/wavedigitizer: tdc payload truncated at channel %d", ch)
		}
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		hits := make([]float64, n)
		for i := range hits {
			if off+8 > len(payload) {
				return fmt.Errorf("shotpipe/wavedigitizer: tdc payload truncated reading hits for channel %d", ch)
			}
			hits[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[off:]))
			off += 8
		}
		td.Channels = append(td.Channels, event.WavedigitizerTDCChannel{Index: ch, HitTimes: hits})
	}
	return nil
}
