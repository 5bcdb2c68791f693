// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package shm

import "sync"

// FakeQueue is an in-memory Queue backed by a bounded FIFO, used by tests
// in place of a real Linux POSIX message queue (mirroring byteSliceSegment
// for Segment).
type FakeQueue struct {
	mu       sync.Mutex
	cap      int
	messages [][]byte
	closed   bool
}

// NewFakeQueue returns a FakeQueue holding at most capacity messages.
func NewFakeQueue(capacity int) *FakeQueue {
	return &FakeQueue{cap: capacity}
}

// Send implements Queue.
func (q *FakeQueue) Send(msg []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrWouldBlock
	}
	if len(q.messages) >= q.cap {
		return ErrWouldBlock
	}
	cp := append([]byte(nil), msg...)
	q.messages = append(q.messages, cp)
	return nil
}

// Receive implements Queue.
func (q *FakeQueue) Receive() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, ErrWouldBlock
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return msg, nil
}

// Close implements Queue.
func (q *FakeQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.messages = nil
	return nil
}

// Len reports the number of messages currently queued, for test assertions.
func (q *FakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
