// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lcls-lab/shotpipe/shm"
)

const isLinux = true

// liveServer owns the shm.Server plus every OS resource backing it, so Close
// can unwind them all in one call.
type liveServer struct {
	srv     *shm.Server
	seg     shm.Segment
	toMonEv *shm.PosixQueue
	fromEv  *shm.PosixQueue
	disc    *shm.PosixQueue
	shuffle shm.Queue
	clients map[int]*shm.PosixQueue
}

// newShmServer opens the real POSIX shared-memory segment and message queue
// set for partition tag p (§4.D, §6.2 startup contract) and prestuffs its
// free list.
func newShmServer(log *logrus.Entry, p string, nEv, nTr, slotSize int) (*liveServer, error) {
	seg, err := shm.OpenMmapSegment("PdsMonitorSharedMemory_"+p, nEv, nTr, slotSize, true)
	if err != nil {
		return nil, fmt.Errorf("open shm segment: %w", err)
	}
	toMonEv, err := shm.OpenQueue("/to-mon-ev-"+p, nEv, 4, true)
	if err != nil {
		seg.Close()
		return nil, fmt.Errorf("open to-mon-ev queue: %w", err)
	}
	fromEv, err := shm.OpenQueue("/from-mon-ev-"+p, nEv, 4, true)
	if err != nil {
		toMonEv.Close()
		seg.Close()
		return nil, fmt.Errorf("open from-mon-ev queue: %w", err)
	}
	disc, err := shm.OpenQueue("/from-mon-disc-"+p, nEv, 4, true)
	if err != nil {
		fromEv.Close()
		toMonEv.Close()
		seg.Close()
		return nil, fmt.Errorf("open discovery queue: %w", err)
	}

	ls := &liveServer{seg: seg, toMonEv: toMonEv, fromEv: fromEv, disc: disc, clients: make(map[int]*shm.PosixQueue)}
	ls.shuffle = shm.NewFakeQueue(nEv * 2)

	newClient := func(clientIdx int) (shm.Queue, error) {
		q, err := shm.OpenQueue(fmt.Sprintf("/to-mon-tr-%s-%d", p, clientIdx), nTr, 4, true)
		if err != nil {
			return nil, err
		}
		ls.clients[clientIdx] = q
		return q, nil
	}

	ls.srv = shm.NewServer(log, seg, toMonEv, fromEv, disc, ls.shuffle, newClient, nEv, nTr)
	if err := ls.srv.PrestuffFreeList(); err != nil {
		ls.Close()
		return nil, fmt.Errorf("prestuff free list: %w", err)
	}
	return ls, nil
}

func (l *liveServer) HandleL1Accept(datagram []byte) error { return l.srv.HandleL1Accept(datagram) }

func (l *liveServer) HandleTransition(serviceID int, datagram []byte) error {
	return l.srv.HandleTransition(serviceID, datagram)
}

func (l *liveServer) Drain() error { return l.srv.Drain() }

func (l *liveServer) Close() error {
	for _, q := range l.clients {
		q.Close()
	}
	l.disc.Close()
	l.fromEv.Close()
	l.toMonEv.Close()
	return l.seg.Close()
}
