// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package shm

import "testing"

func newTestServer(t *testing.T, nEv, nTr int) (*Server, map[int]*FakeQueue, func(int) Queue) {
	t.Helper()
	seg := NewMemSegment(nEv, nTr, 64, 4096)
	clientQueues := make(map[int]*FakeQueue)
	factory := func(idx int) (Queue, error) {
		q := NewFakeQueue(16)
		clientQueues[idx] = q
		return q, nil
	}
	s := NewServer(nil, seg, NewFakeQueue(16), NewFakeQueue(nEv+4), NewFakeQueue(4), NewFakeQueue(16), factory, nEv, nTr)
	if err := s.PrestuffFreeList(); err != nil {
		t.Fatalf("PrestuffFreeList: %v", err)
	}
	return s, clientQueues, func(idx int) Queue { return clientQueues[idx] }
}

func TestL1AcceptDropsWhenNoFreeSlot(t *testing.T) {
	s, _, _ := newTestServer(t, 1, 2)

	if err := s.HandleL1Accept([]byte("first")); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if err := s.HandleL1Accept([]byte("second")); err != nil {
		t.Fatalf("second accept should drop silently, not error: %v", err)
	}
	if len(s.pending) != 1 {
		t.Fatalf("expected exactly one pending datagram, got %d", len(s.pending))
	}
}

func TestDrainShuffleCopiesIntoSegmentAndAnnouncesToMonEv(t *testing.T) {
	s, _, _ := newTestServer(t, 2, 2)

	if err := s.HandleL1Accept([]byte("payload-a")); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := s.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}

	toMonEv := s.ToMonEv.(*FakeQueue)
	if toMonEv.Len() != 1 {
		t.Fatalf("expected one ToMonEv announcement, got %d", toMonEv.Len())
	}
	if len(s.pending) != 0 {
		t.Fatalf("expected pending datagram to be cleared after drain, got %d entries", len(s.pending))
	}
}

func TestHandleTransitionEvenServiceIDCachesSlot(t *testing.T) {
	s, _, _ := newTestServer(t, 1, 2)

	if err := s.HandleTransition(2, []byte("configure")); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(s.cachedTransitions) != 1 {
		t.Fatalf("expected configure (even service id) to be cached, got %d cached", len(s.cachedTransitions))
	}
}

func TestHandleTransitionOddServiceIDRetiresCachedSlot(t *testing.T) {
	s, _, _ := newTestServer(t, 1, 2)

	if err := s.HandleTransition(2, []byte("configure")); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := s.HandleTransition(3, []byte("unconfigure")); err != nil {
		t.Fatalf("unconfigure: %v", err)
	}

	if len(s.cachedTransitions) != 0 {
		t.Fatalf("expected odd service id to retire the cached slot, %d remain", len(s.cachedTransitions))
	}
	if len(s.transitionFree) != 2 {
		t.Fatalf("expected both transition slots free again, got %d", len(s.transitionFree))
	}
}

func TestDiscoveryReplaysCachedTransitionsInOrder(t *testing.T) {
	s, clientQueues, _ := newTestServer(t, 1, 4)

	if err := s.HandleTransition(2, []byte("map")); err != nil {
		t.Fatalf("map: %v", err)
	}
	if err := s.HandleTransition(4, []byte("configure")); err != nil {
		t.Fatalf("configure: %v", err)
	}

	discovery := s.Discovery.(*FakeQueue)
	if err := discovery.Send(encodeIndex(7)); err != nil {
		t.Fatalf("seed discovery: %v", err)
	}
	if err := s.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}

	q, ok := clientQueues[7]
	if !ok {
		t.Fatalf("expected client 7's transition queue to have been created")
	}
	if q.Len() != 2 {
		t.Fatalf("expected both cached transitions replayed, got %d messages", q.Len())
	}
	first, _ := q.Receive()
	second, _ := q.Receive()
	if decodeIndex(first) == decodeIndex(second) {
		t.Fatalf("replayed transitions should be distinct slots")
	}
}

func TestHandleTransitionExhaustedPoolErrors(t *testing.T) {
	s, _, _ := newTestServer(t, 1, 1)

	if err := s.HandleTransition(2, []byte("configure")); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := s.HandleTransition(2, []byte("configure-again")); err == nil {
		t.Fatalf("expected error once the single transition slot is exhausted")
	}
}
