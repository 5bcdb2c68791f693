// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config implements the hierarchical settings tree (§6.5): a
// top-level set of named groups (PostProcessor, Converter, SharedMemory,
// Input), each holding per-component subtrees addressed by the component's
// own name, the way the teacher's conn/i2c/i2creg and conn/spi/spireg
// packages address a registered bus by name.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownProcessorKind is returned at load time when a PostProcessor
// entry names a kind with no registered constructor.
var ErrUnknownProcessorKind = fmt.Errorf("shotpipe/config: unknown processor kind")

// Node is one entry's raw settings bag: a free-form map plus the five keys
// every processor entry carries regardless of kind (§6.5).
type Node struct {
	Kind          string                 `yaml:"kind"`
	Hide          bool                   `yaml:"hide"`
	Comment       string                 `yaml:"comment"`
	ConditionName string                 `yaml:"conditionName"`
	Dependencies  []string               `yaml:"dependencies"`
	Params        map[string]interface{} `yaml:",inline"`
}

// Group is a named collection of Nodes, e.g. the "PostProcessor" top-level
// group.
type Group map[string]Node

// Tree is the parsed settings document. The four top-level groups are
// always present (possibly empty) after Load.
type Tree struct {
	PostProcessor Group `yaml:"PostProcessor"`
	Converter     Group `yaml:"Converter"`
	SharedMemory  Group `yaml:"SharedMemory"`
	Input         Group `yaml:"Input"`
}

// Load reads and parses a YAML settings file at path.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shotpipe/config: read %s: %w", path, err)
	}
	var t Tree
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("shotpipe/config: parse %s: %w", path, err)
	}
	t.ensureGroups()
	return &t, nil
}

func (t *Tree) ensureGroups() {
	if t.PostProcessor == nil {
		t.PostProcessor = Group{}
	}
	if t.Converter == nil {
		t.Converter = Group{}
	}
	if t.SharedMemory == nil {
		t.SharedMemory = Group{}
	}
	if t.Input == nil {
		t.Input = Group{}
	}
}

// Section returns the named group, mirroring the teacher's registry
// name-addressed lookup style.
func (t *Tree) Section(name string) (Group, error) {
	switch name {
	case "PostProcessor":
		return t.PostProcessor, nil
	case "Converter":
		return t.Converter, nil
	case "SharedMemory":
		return t.SharedMemory, nil
	case "Input":
		return t.Input, nil
	default:
		return nil, fmt.Errorf("shotpipe/config: unknown section %q", name)
	}
}

// BoolDefault returns the bool-typed param key from n, or def if the key is
// absent or not a bool.
func (n Node) BoolDefault(key string, def bool) bool {
	if v, ok := n.Params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// IntDefault returns the int-typed param key from n, or def if the key is
// absent or not numeric.
func (n Node) IntDefault(key string, def int) int {
	if v, ok := n.Params[key]; ok {
		switch x := v.(type) {
		case int:
			return x
		case float64:
			return int(x)
		}
	}
	return def
}

// Float64Default returns the float64-typed param key from n, or def if the
// key is absent or not numeric.
func (n Node) Float64Default(key string, def float64) float64 {
	if v, ok := n.Params[key]; ok {
		switch x := v.(type) {
		case float64:
			return x
		case int:
			return float64(x)
		}
	}
	return def
}

// StringDefault returns the string-typed param key from n, or def if the
// key is absent or not a string.
func (n Node) StringDefault(key string, def string) string {
	if v, ok := n.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// StringSliceDefault returns the []string-typed param key from n (accepting
// a YAML sequence decoded as []interface{} of strings), or def if absent or
// malformed.
func (n Node) StringSliceDefault(key string, def []string) []string {
	v, ok := n.Params[key]
	if !ok {
		return def
	}
	raw, ok := v.([]interface{})
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return def
		}
		out = append(out, s)
	}
	return out
}

// KnownKind is satisfied by the set of registered processor-kind strings a
// caller validates PostProcessor entries against; callers build this set
// from whatever constructors they've wired (e.g. proc/ops's exported
// NewXxx functions), since config itself doesn't know about proc/ops.
type KnownKind map[string]struct{}

// ValidateKinds reports ErrUnknownProcessorKind, wrapped with the offending
// node's name and kind, for any PostProcessor entry whose Kind isn't in
// known.
func (t *Tree) ValidateKinds(known KnownKind) error {
	for name, node := range t.PostProcessor {
		if _, ok := known[node.Kind]; !ok {
			return fmt.Errorf("%w: %q has kind %q", ErrUnknownProcessorKind, name, node.Kind)
		}
	}
	return nil
}
