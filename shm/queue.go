// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package shm implements the shared-memory live-monitor server (§3.5,
// §4.D, §6.2): a flat mmap'd region of fixed-size slots plus a set of
// POSIX message queues coordinating which slot belongs to whom. The
// message-queue and segment abstractions are interfaces so the server's
// steady-state and discovery logic can be unit tested without a running
// Linux mqueue subsystem (the teacher's conn/conntest pattern, applied
// here to OS IPC instead of an I2C/SPI bus).
package shm

import "errors"

// ErrWouldBlock is returned by Queue.Send/Receive when the non-blocking
// operation has nothing to do — a full queue on send, an empty queue on
// receive — mirroring mq_timedsend/mq_timedreceive with a zero timeout.
var ErrWouldBlock = errors.New("shotpipe/shm: would block")

// Queue is the non-blocking POSIX message queue contract every shared
// memory queue in §6.2 uses: fixed-size binary messages, best-effort send,
// non-blocking receive.
type Queue interface {
	// Send enqueues msg, or returns ErrWouldBlock if the queue is full.
	Send(msg []byte) error
	// Receive dequeues one message, or returns ErrWouldBlock if empty.
	Receive() ([]byte, error)
	// Close releases the queue's OS resources (and, for the owning side,
	// unlinks its name).
	Close() error
}
