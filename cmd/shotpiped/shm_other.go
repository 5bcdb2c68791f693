// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/lcls-lab/shotpipe/shm"
)

const isLinux = false

// liveServer wraps an in-memory shm.Server on non-Linux builds, where
// neither /dev/shm mmap nor POSIX message queues are available: every
// client would have to run in this same process to ever drain these
// queues, so this build exists to let the daemon start and run its
// processor graph end to end off Linux, not to serve real external
// monitor clients (§4.D is a Linux-only wire contract).
type liveServer struct {
	srv *shm.Server
	seg shm.Segment
}

// newShmServer builds an all-in-memory stand-in for the real shared-memory
// live-monitor server, sized the same way the Linux build is.
func newShmServer(log *logrus.Entry, p string, nEv, nTr, slotSize int) (*liveServer, error) {
	log.WithField("partition", p).Warn("shared-memory live monitor is not available on this platform; running with an in-memory stand-in")

	seg := shm.NewMemSegment(nEv, nTr, slotSize, 4096)
	toMonEv := shm.NewFakeQueue(nTr * 4)
	fromEv := shm.NewFakeQueue(nEv * 2)
	disc := shm.NewFakeQueue(nEv)
	shuffle := shm.NewFakeQueue(nEv * 2)

	newClient := func(clientIdx int) (shm.Queue, error) {
		return shm.NewFakeQueue(nTr * 4), nil
	}

	ls := &liveServer{seg: seg}
	ls.srv = shm.NewServer(log, seg, toMonEv, fromEv, disc, shuffle, newClient, nEv, nTr)
	if err := ls.srv.PrestuffFreeList(); err != nil {
		return nil, err
	}
	return ls, nil
}

func (l *liveServer) HandleL1Accept(datagram []byte) error { return l.srv.HandleL1Accept(datagram) }

func (l *liveServer) HandleTransition(serviceID int, datagram []byte) error {
	return l.srv.HandleTransition(serviceID, datagram)
}

func (l *liveServer) Drain() error { return l.srv.Drain() }

func (l *liveServer) Close() error { return l.seg.Close() }
