// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package shm

import "testing"

func TestFakeQueueSendReceiveRoundTrip(t *testing.T) {
	q := NewFakeQueue(2)

	if err := q.Send([]byte("a")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := q.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(got) != "a" {
		t.Fatalf("got %q, want %q", got, "a")
	}
}

func TestFakeQueueReceiveOnEmptyWouldBlock(t *testing.T) {
	q := NewFakeQueue(2)
	if _, err := q.Receive(); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}

func TestFakeQueueSendOnFullWouldBlock(t *testing.T) {
	q := NewFakeQueue(1)
	if err := q.Send([]byte("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := q.Send([]byte("b")); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock on a full queue, got %v", err)
	}
}

func TestFakeQueueClosedRejectsSend(t *testing.T) {
	q := NewFakeQueue(2)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Send([]byte("a")); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock sending to a closed queue, got %v", err)
	}
}
