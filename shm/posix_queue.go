// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PosixQueue is a Queue backed by a real Linux POSIX message queue, opened
// non-blocking per §5 ("mq_timedsend / mq_receive calls with a zero
// timeout"). name must begin with "/" per mq_overview(7).
type PosixQueue struct {
	fd      int
	name    string
	msgSize int
	owner   bool
}

// OpenQueue opens (creating if missing) the named queue with capacity
// maxMsg messages of msgSize bytes each (§6.2 "mq_maxmsg = N_ev,
// mq_msgsize = sizeof(Msg)"). owner controls whether Close unlinks the
// queue's name in addition to closing the descriptor.
func OpenQueue(name string, maxMsg, msgSize int, owner bool) (*PosixQueue, error) {
	attr := &unix.MqAttr{Maxmsg: int64(maxMsg), Msgsize: int64(msgSize)}
	fd, err := unix.MqOpen(name, unix.O_CREAT|unix.O_RDWR|unix.O_NONBLOCK, 0o666, attr)
	if err != nil {
		return nil, fmt.Errorf("shotpipe/shm: mq_open %s: %w", name, err)
	}
	return &PosixQueue{fd: fd, name: name, msgSize: msgSize, owner: owner}, nil
}

// Send implements Queue.
func (q *PosixQueue) Send(msg []byte) error {
	err := unix.MqTimedsend(q.fd, msg, 0, &unix.Timespec{})
	if err == unix.EAGAIN {
		return ErrWouldBlock
	}
	if err != nil {
		return fmt.Errorf("shotpipe/shm: mq_send %s: %w", q.name, err)
	}
	return nil
}

// Receive implements Queue.
func (q *PosixQueue) Receive() ([]byte, error) {
	buf := make([]byte, q.msgSize)
	var prio uint
	n, err := unix.MqTimedreceive(q.fd, buf, &prio, &unix.Timespec{})
	if err == unix.EAGAIN {
		return nil, ErrWouldBlock
	}
	if err != nil {
		return nil, fmt.Errorf("shotpipe/shm: mq_receive %s: %w", q.name, err)
	}
	return buf[:n], nil
}

// Close implements Queue.
func (q *PosixQueue) Close() error {
	if err := unix.Close(q.fd); err != nil {
		return fmt.Errorf("shotpipe/shm: close %s: %w", q.name, err)
	}
	if q.owner {
		if err := unix.MqUnlink(q.name); err != nil {
			return fmt.Errorf("shotpipe/shm: mq_unlink %s: %w", q.name, err)
		}
	}
	return nil
}
