// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package control

import "testing"

type fakeHandler struct {
	pausedCalls    []bool
	reloadErr      error
	reloadCalled   bool
	retrainedNodes []string
	clearedNodes   []string
	quitRequested  bool
}

func (f *fakeHandler) SetPaused(paused bool) { f.pausedCalls = append(f.pausedCalls, paused) }
func (f *fakeHandler) ReloadSettings() error { f.reloadCalled = true; return f.reloadErr }
func (f *fakeHandler) Retrain(node string) error {
	f.retrainedNodes = append(f.retrainedNodes, node)
	return nil
}
func (f *fakeHandler) Clear(node string) error {
	f.clearedNodes = append(f.clearedNodes, node)
	return nil
}
func (f *fakeHandler) RequestQuit() { f.quitRequested = true }

func TestPauseResumeAreIdempotent(t *testing.T) {
	h := &fakeHandler{}
	s := NewSurface(nil, h)

	if err := s.Dispatch(Command{Kind: Pause}); err != nil {
		t.Fatalf("Dispatch(Pause): %v", err)
	}
	if err := s.Dispatch(Command{Kind: Pause}); err != nil {
		t.Fatalf("Dispatch(Pause) again: %v", err)
	}
	if len(h.pausedCalls) != 1 {
		t.Fatalf("expected exactly one SetPaused call, got %d", len(h.pausedCalls))
	}
	if !s.Paused() {
		t.Fatalf("expected surface to report paused")
	}

	if err := s.Dispatch(Command{Kind: Resume}); err != nil {
		t.Fatalf("Dispatch(Resume): %v", err)
	}
	if len(h.pausedCalls) != 2 || h.pausedCalls[1] != false {
		t.Fatalf("expected resume to call SetPaused(false), got %v", h.pausedCalls)
	}
}

func TestRetrainAndClearRequireTarget(t *testing.T) {
	h := &fakeHandler{}
	s := NewSurface(nil, h)

	if err := s.Dispatch(Command{Kind: Retrain}); err == nil {
		t.Fatalf("expected error for retrain without target")
	}
	if err := s.Dispatch(Command{Kind: Retrain, Target: "peakFinder"}); err != nil {
		t.Fatalf("Dispatch(Retrain): %v", err)
	}
	if len(h.retrainedNodes) != 1 || h.retrainedNodes[0] != "peakFinder" {
		t.Fatalf("retrainedNodes = %v", h.retrainedNodes)
	}

	if err := s.Dispatch(Command{Kind: Clear}); err == nil {
		t.Fatalf("expected error for clear without target")
	}
}

func TestQuitSignalsHandler(t *testing.T) {
	h := &fakeHandler{}
	s := NewSurface(nil, h)
	if err := s.Dispatch(Command{Kind: Quit}); err != nil {
		t.Fatalf("Dispatch(Quit): %v", err)
	}
	if !h.quitRequested {
		t.Fatalf("expected RequestQuit to be called")
	}
}

func TestParseCommandParsesAllSixVerbs(t *testing.T) {
	cases := map[string]Kind{
		"pause":            Pause,
		"resume":           Resume,
		"reload-settings":  ReloadSettings,
		"quit":             Quit,
		"retrain nodeA":    Retrain,
		"clear nodeB":      Clear,
	}
	for line, want := range cases {
		cmd, err := ParseCommand(line)
		if err != nil {
			t.Fatalf("ParseCommand(%q): %v", line, err)
		}
		if cmd.Kind != want {
			t.Errorf("ParseCommand(%q).Kind = %v, want %v", line, cmd.Kind, want)
		}
	}
}

func TestParseCommandRejectsUnknownVerb(t *testing.T) {
	if _, err := ParseCommand("frobnicate"); err == nil {
		t.Fatalf("expected error for unknown verb")
	}
}

func TestParseCommandRejectsMissingTarget(t *testing.T) {
	if _, err := ParseCommand("retrain"); err == nil {
		t.Fatalf("expected error for retrain without a node name")
	}
}
