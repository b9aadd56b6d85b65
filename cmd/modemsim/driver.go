// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/goby-project/goby-middleware/intervehicle"
)

// simLink is a development-only intervehicle.ModemDriver that stands
// in for a physical acoustic/radio modem (spec.md §1's explicitly
// out-of-scope "plug-in supplying data_request, receive, ack, expire
// signals"): it polls its own data-request on a fixed duty cycle,
// hands any assembled frame to its peer after an artificial
// LinkLatency, and drops it (firing Expire instead of Ack) with
// probability LossProbability — simulating the slow, unreliable links
// spec.md §1 describes.
type simLink struct {
	Peer            *simLink
	DutyCycle       time.Duration
	LinkLatency     time.Duration
	LossProbability float64
	MaxFrameBytes   int

	dataReq func(int) []byte
	receive func([]byte)
	ack     func(intervehicle.FrameID)
	expire  func(intervehicle.FrameID)

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *simLink) SetDataRequest(cb func(int) []byte)      { s.dataReq = cb }
func (s *simLink) SetReceive(cb func([]byte))              { s.receive = cb }
func (s *simLink) SetAck(cb func(intervehicle.FrameID))    { s.ack = cb }
func (s *simLink) SetExpire(cb func(intervehicle.FrameID)) { s.expire = cb }

func (s *simLink) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.DutyCycle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	return nil
}

func (s *simLink) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// tick asks the portal for a frame and, if it has one, delivers it to
// the peer after LinkLatency, then resolves it as acked or expired per
// LossProbability — never both, mirroring a real link's one outcome
// per transmitted frame.
func (s *simLink) tick(ctx context.Context) {
	if s.dataReq == nil {
		return
	}
	frame := s.dataReq(s.MaxFrameBytes)
	if len(frame) < 4 {
		return
	}

	id := intervehicle.FrameID(binary.BigEndian.Uint32(frame[0:4]))
	lost := rand.Float64() < s.LossProbability

	go func() {
		select {
		case <-time.After(s.LinkLatency):
		case <-ctx.Done():
			return
		}

		if !lost && s.Peer != nil && s.Peer.receive != nil {
			s.Peer.receive(frame)
		}

		switch {
		case lost && s.expire != nil:
			s.expire(id)
		case !lost && s.ack != nil:
			s.ack(id)
		}
	}()
}

var _ intervehicle.ModemDriver = (*simLink)(nil)
