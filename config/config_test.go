// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
PostProcessor:
  peakFinder:
    kind: PeakFinder
    hide: false
    conditionName: AlwaysTrue
    threshold: 5.5
    maxRows: 20
    dependencies: [frame]
  avg:
    kind: Averaging
    comment: running average of the spectrum
Converter:
  cspad0:
    kind: CsPad
SharedMemory:
  partition0:
    kind: Live
Input:
  xtc0:
    kind: Xtc
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesAllFourGroups(t *testing.T) {
	tree, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tree.PostProcessor) != 2 {
		t.Fatalf("PostProcessor entries = %d, want 2", len(tree.PostProcessor))
	}
	if _, ok := tree.Converter["cspad0"]; !ok {
		t.Fatalf("expected Converter.cspad0")
	}
	if _, ok := tree.SharedMemory["partition0"]; !ok {
		t.Fatalf("expected SharedMemory.partition0")
	}
	if _, ok := tree.Input["xtc0"]; !ok {
		t.Fatalf("expected Input.xtc0")
	}
}

func TestNodeDefaultsFallBackWhenKeyMissing(t *testing.T) {
	tree, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	peak := tree.PostProcessor["peakFinder"]
	if got := peak.Float64Default("threshold", -1); got != 5.5 {
		t.Fatalf("threshold = %v, want 5.5", got)
	}
	if got := peak.IntDefault("maxRows", -1); got != 20 {
		t.Fatalf("maxRows = %v, want 20", got)
	}
	if got := peak.IntDefault("missingKey", 99); got != 99 {
		t.Fatalf("missingKey default = %v, want 99", got)
	}
	if got := peak.Dependencies; len(got) != 1 || got[0] != "frame" {
		t.Fatalf("dependencies = %v, want [frame]", got)
	}

	avg := tree.PostProcessor["avg"]
	if avg.Comment != "running average of the spectrum" {
		t.Fatalf("comment = %q", avg.Comment)
	}
}

func TestSectionRejectsUnknownName(t *testing.T) {
	tree, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := tree.Section("NotAGroup"); err == nil {
		t.Fatalf("expected error for unknown section name")
	}
}

func TestValidateKindsRejectsUnregisteredKind(t *testing.T) {
	tree, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	known := KnownKind{"PeakFinder": {}}
	if err := tree.ValidateKinds(known); err == nil {
		t.Fatalf("expected ErrUnknownProcessorKind for Averaging kind")
	}
	known["Averaging"] = struct{}{}
	if err := tree.ValidateKinds(known); err != nil {
		t.Fatalf("ValidateKinds with all kinds known: %v", err)
	}
}
