// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import (
	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/subscription"
	"github.com/goby-project/goby-middleware/transport"
)

// HealthFunc reports a goroutine's current self-assessed state; it
// must be cheap and non-blocking, since it runs inline from the
// interthread delivery that carries a HealthRequest.
type HealthFunc func() HealthState

// Participant is the Go analogue of `coroner.h`'s
// Thread<Derived>::subscribe_coroner: a long-lived goroutine that
// answers HealthRequests on the interthread layer with its own
// ThreadHealth, so a process-level Monitor can aggregate it as a
// child. Name and UID identify it in the Monitor's response.
type Participant struct {
	layer transport.Layer
	owner uint64
	name  string
	uid   uint64
	state HealthFunc
	log   logger.Logger
	h     subscription.Handle
}

// NewParticipant registers owner with layer (normally the process's
// Interthread layer) to answer HealthRequests as name/uid, reporting
// state() each time. uid is typically coroner.ThreadID(); name should
// be stable and human-readable, e.g. the goroutine's log tag. log may
// be nil, in which case a failed reply is dropped silently.
func NewParticipant(layer transport.Layer, owner uint64, name string, uid uint64, state HealthFunc, log logger.Logger) (*Participant, error) {
	p := &Participant{layer: layer, owner: owner, name: name, uid: uid, state: state, log: log}
	h, err := layer.Subscribe(owner, healthGroup(HealthRequestGroup), group.SchemeProtobuf, HealthRequestType,
		func(interface{}) {
			if err := layer.Publish(owner, healthGroup(HealthResponseGroup), group.SchemeProtobuf, ThreadHealthType,
				&ThreadHealth{Name: p.name, UID: p.uid, State: p.state()}, transport.Config{}); err != nil && p.log != nil {
				p.log.Warn("coroner: publish thread health: " + err.Error())
			}
		})
	if err != nil {
		return nil, err
	}
	p.h = h
	return p, nil
}

// Close unregisters the participant; it no longer answers health
// requests after this returns.
func (p *Participant) Close() { p.layer.Unsubscribe(p.h) }
