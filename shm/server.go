// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package shm

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ClientQueueFactory opens the per-client transition queue named after the
// partition tag and client index (`/to-mon-tr-<p>-<i>` in §6.2) the first
// time that client is seen on discovery.
type ClientQueueFactory func(clientIndex int) (Queue, error)

// Server is the shared-memory live-monitor server (§4.D): it owns the
// segment and queue set for one partition and drives the steady-state and
// discovery/shuffle routines. The free-list queue (named "/to-mon-ev-<p>"
// in the wire-level description, but functioning as clients' return path
// for freed slots, matching §6.2's ToMonitorEv/FromMonitorEv pair) is
// prestuffed by the server at startup since no client has returned
// anything yet.
type Server struct {
	Log *logrus.Entry

	Seg       Segment
	ToMonEv   Queue // server -> clients: "slot index is filled, go read it"
	FromMonEv Queue // clients -> server (and server self-seeded at startup): free slot indices
	Discovery Queue // clients -> server: "I am client index i"
	Shuffle   Queue // intra-process handoff, decoupling datagram copy from ToMonEv blocking

	NewClientQueue ClientQueueFactory
	clientQueues   map[int]Queue

	nEv, nTr int
	msgSize  int

	transitionFree    []int // process-local free list for transition slots [nEv, nEv+nTr)
	cachedTransitions []int // stack mirroring the client-visible configuration state

	pending map[int][]byte // index -> datagram awaiting the shuffle->ToMonEv hop
}

// NewServer constructs a Server over an already-open Segment and queue
// set, with nEv event slots and nTr transition slots.
func NewServer(log *logrus.Entry, seg Segment, toMonEv, fromMonEv, discovery, shuffle Queue, newClientQueue ClientQueueFactory, nEv, nTr int) *Server {
	s := &Server{
		Log: log, Seg: seg,
		ToMonEv: toMonEv, FromMonEv: fromMonEv, Discovery: discovery, Shuffle: shuffle,
		NewClientQueue: newClientQueue,
		clientQueues:   make(map[int]Queue),
		nEv:            nEv, nTr: nTr,
		msgSize: seg.SlotSize(),
		pending: make(map[int][]byte),
	}
	for i := 0; i < nTr; i++ {
		s.transitionFree = append(s.transitionFree, nEv+i)
	}
	return s
}

// PrestuffFreeList seeds the free-slot queue with indices [0, nEv) at
// startup, before any client has had a chance to return a slot (§4.D
// "Prestuff the free list with indices [0..N_ev)").
func (s *Server) PrestuffFreeList() error {
	for i := 0; i < s.nEv; i++ {
		if err := s.FromMonEv.Send(encodeIndex(i)); err != nil {
			return fmt.Errorf("shotpipe/shm: prestuff free list index %d: %w", i, err)
		}
	}
	return nil
}

// isOddServiceID reports §4.D's "odd service id" transition-release rule:
// un-map/un-configure/stop/unknown-end transitions are odd-numbered and
// retire the most recently cached transition slot instead of keeping this
// one live.
func isOddServiceID(serviceID int) bool { return serviceID%2 == 1 }

// HandleTransition processes one non-L1-accept event: copy its datagram
// into a transition slot, retire the previously cached slot and return this
// slot to the transition free list if this transition's service id is odd,
// otherwise push this slot onto the cached-transitions stack, then
// best-effort fan it out to every known
// client's transition queue (§4.D "Steady state", first bullet).
func (s *Server) HandleTransition(serviceID int, datagram []byte) error {
	if len(s.transitionFree) == 0 {
		return fmt.Errorf("shotpipe/shm: transition slot pool exhausted")
	}
	index := s.transitionFree[len(s.transitionFree)-1]
	s.transitionFree = s.transitionFree[:len(s.transitionFree)-1]

	if err := s.Seg.WriteSlot(index, datagram); err != nil {
		return fmt.Errorf("shotpipe/shm: write transition slot: %w", err)
	}

	if isOddServiceID(serviceID) {
		if len(s.cachedTransitions) > 0 {
			retired := s.cachedTransitions[len(s.cachedTransitions)-1]
			s.cachedTransitions = s.cachedTransitions[:len(s.cachedTransitions)-1]
			s.transitionFree = append(s.transitionFree, retired)
		}
		s.transitionFree = append(s.transitionFree, index)
	} else {
		s.cachedTransitions = append(s.cachedTransitions, index)
	}

	s.fanOutTransition(index)
	return nil
}

func (s *Server) fanOutTransition(index int) {
	msg := encodeIndex(index)
	for clientIdx, q := range s.clientQueues {
		if err := q.Send(msg); err != nil && s.Log != nil {
			s.Log.WithFields(logrus.Fields{"component": "shm.server", "client": clientIdx}).Debug("transition fan-out did not deliver")
		}
	}
}

// HandleL1Accept processes one L1-accept event: pop a free slot index
// (silently dropping the event if none is available, per §4.D's
// back-pressure-without-blocking rule) and hand the datagram to the
// shuffle queue for the drain routine to copy into shared memory.
func (s *Server) HandleL1Accept(datagram []byte) error {
	raw, err := s.FromMonEv.Receive()
	if err == ErrWouldBlock {
		return nil // no free slot: drop without blocking upstream
	}
	if err != nil {
		return fmt.Errorf("shotpipe/shm: receive free slot: %w", err)
	}
	index := decodeIndex(raw)
	s.pending[index] = datagram
	if err := s.Shuffle.Send(encodeIndex(index)); err != nil {
		return fmt.Errorf("shotpipe/shm: shuffle send: %w", err)
	}
	return nil
}

// Drain runs one pass of the server routine (§4.D "Server routine"):
// poll discovery, then poll shuffle, handling at most one message of each.
// It never blocks; callers loop it on their own cadence.
func (s *Server) Drain() error {
	if err := s.drainDiscovery(); err != nil {
		return err
	}
	return s.drainShuffle()
}

func (s *Server) drainDiscovery() error {
	raw, err := s.Discovery.Receive()
	if err == ErrWouldBlock {
		return nil
	}
	if err != nil {
		return fmt.Errorf("shotpipe/shm: discovery receive: %w", err)
	}
	clientIdx := decodeIndex(raw)
	q, ok := s.clientQueues[clientIdx]
	if !ok {
		q, err = s.NewClientQueue(clientIdx)
		if err != nil {
			return fmt.Errorf("shotpipe/shm: open transition queue for client %d: %w", clientIdx, err)
		}
		s.clientQueues[clientIdx] = q
	}
	s.replayCachedTransitions(q)
	return nil
}

// replayCachedTransitions gives a newly discovered client every transition
// currently in effect, in original order, by popping the stack to a scratch
// slice and pushing it back (§4.D "temporarily popping to a scratch stack
// and re-pushing to preserve order").
func (s *Server) replayCachedTransitions(q Queue) {
	scratch := append([]int(nil), s.cachedTransitions...)
	for _, index := range scratch {
		if err := q.Send(encodeIndex(index)); err != nil && s.Log != nil {
			s.Log.WithFields(logrus.Fields{"component": "shm.server"}).Debug("late-join replay did not deliver")
		}
	}
}

func (s *Server) drainShuffle() error {
	raw, err := s.Shuffle.Receive()
	if err == ErrWouldBlock {
		return nil
	}
	if err != nil {
		return fmt.Errorf("shotpipe/shm: shuffle receive: %w", err)
	}
	index := decodeIndex(raw)
	datagram, ok := s.pending[index]
	if !ok {
		return fmt.Errorf("shotpipe/shm: shuffle index %d has no pending datagram", index)
	}
	delete(s.pending, index)

	if err := s.Seg.WriteSlot(index, datagram); err != nil {
		return fmt.Errorf("shotpipe/shm: write event slot: %w", err)
	}
	if err := s.ToMonEv.Send(encodeIndex(index)); err != nil {
		if s.Log != nil {
			s.Log.WithFields(logrus.Fields{"component": "shm.server", "index": index}).Warn("outputEv timed out")
		}
	}
	return nil
}

func encodeIndex(i int) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(i))
	return buf
}

func decodeIndex(b []byte) int {
	return int(binary.LittleEndian.Uint32(b))
}
