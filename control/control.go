// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package control implements the process-level command channel (§6.3):
// pause, resume, reload-settings, retrain <node>, quit, and clear <node>.
// Every command is idempotent — issuing "pause" twice in a row is the same
// as issuing it once.
package control

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Kind names one of the six accepted commands.
type Kind int

// The six control-surface commands §6.3 enumerates.
const (
	Pause Kind = iota
	Resume
	ReloadSettings
	Retrain
	Quit
	Clear
)

func (k Kind) String() string {
	switch k {
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case ReloadSettings:
		return "reload-settings"
	case Retrain:
		return "retrain"
	case Quit:
		return "quit"
	case Clear:
		return "clear"
	default:
		return "unknown"
	}
}

// Command is one parsed control-surface request. Target is the node name
// for Retrain/Clear and is ignored for the other four kinds.
type Command struct {
	Kind   Kind
	Target string
}

// Handler receives state transitions and per-node actions from a Surface.
// Implementations (e.g. the daemon's worker pool and proc.Graph) supply the
// mechanics; Surface only owns command dispatch and idempotency.
type Handler interface {
	// SetPaused idempotently enters or leaves the paused state; workers
	// must stop pulling new events from the ring while paused.
	SetPaused(paused bool)
	// ReloadSettings re-reads every node's parameter bag and may recreate
	// result caches (§6.3 "may trigger recreation of its result cache").
	ReloadSettings() error
	// Retrain resets whatever historical/background model the named node
	// keeps (the node-local state pattern used by History, Averaging,
	// Covariance, and the IIR filter in proc/ops).
	Retrain(node string) error
	// Clear resets the named node's published result to its zero value.
	Clear(node string) error
	// RequestQuit signals the input loop to terminate cleanly once the
	// ring drains.
	RequestQuit()
}

// Surface is the control-surface front end: it dispatches parsed Commands
// to a Handler, logging every transition and tracking pause state so
// repeated pause/resume commands are idempotent no-ops.
type Surface struct {
	Log     *logrus.Entry
	handler Handler
	paused  bool
}

// NewSurface wires a Surface to the given Handler.
func NewSurface(log *logrus.Entry, h Handler) *Surface {
	return &Surface{Log: log, handler: h}
}

// Dispatch executes one command. It never returns an error for Pause,
// Resume, or Quit (they cannot fail); ReloadSettings/Retrain/Clear surface
// whatever their Handler reports.
func (s *Surface) Dispatch(cmd Command) error {
	fields := logrus.Fields{"component": "control", "command": cmd.Kind.String()}
	if cmd.Target != "" {
		fields["target"] = cmd.Target
	}
	if s.Log != nil {
		s.Log.WithFields(fields).Info("control command received")
	}

	switch cmd.Kind {
	case Pause:
		s.setPaused(true)
		return nil
	case Resume:
		s.setPaused(false)
		return nil
	case ReloadSettings:
		return s.handler.ReloadSettings()
	case Retrain:
		if cmd.Target == "" {
			return fmt.Errorf("shotpipe/control: retrain requires a node name")
		}
		return s.handler.Retrain(cmd.Target)
	case Quit:
		s.handler.RequestQuit()
		return nil
	case Clear:
		if cmd.Target == "" {
			return fmt.Errorf("shotpipe/control: clear requires a node name")
		}
		return s.handler.Clear(cmd.Target)
	default:
		return fmt.Errorf("shotpipe/control: unknown command kind %v", cmd.Kind)
	}
}

func (s *Surface) setPaused(paused bool) {
	if s.paused == paused {
		return // idempotent: already in the requested state
	}
	s.paused = paused
	s.handler.SetPaused(paused)
}

// Paused reports the surface's current pause state.
func (s *Surface) Paused() bool { return s.paused }

// ParseCommand parses a control-surface line such as "retrain peakFinder"
// or "pause" into a Command (§6.3's six verbs, the last two taking a node
// name argument).
func ParseCommand(line string) (Command, error) {
	var verb, target string
	n, _ := fmt.Sscan(line, &verb, &target)
	if n == 0 {
		return Command{}, fmt.Errorf("shotpipe/control: empty command")
	}
	switch verb {
	case "pause":
		return Command{Kind: Pause}, nil
	case "resume":
		return Command{Kind: Resume}, nil
	case "reload-settings":
		return Command{Kind: ReloadSettings}, nil
	case "quit":
		return Command{Kind: Quit}, nil
	case "retrain":
		if target == "" {
			return Command{}, fmt.Errorf("shotpipe/control: retrain requires a node name")
		}
		return Command{Kind: Retrain, Target: target}, nil
	case "clear":
		if target == "" {
			return Command{}, fmt.Errorf("shotpipe/control: clear requires a node name")
		}
		return Command{Kind: Clear, Target: target}, nil
	default:
		return Command{}, fmt.Errorf("shotpipe/control: unknown command %q", verb)
	}
}
