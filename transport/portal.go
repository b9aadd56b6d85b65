// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/serialize"
)

// External abstracts the connection a Portal owns to the outside
// world: a broker (interprocess, intermodule) or a modem driver
// (intervehicle). Send transmits one outgoing envelope; Inbound
// delivers envelopes arriving from outside until the External is
// closed, at which point the channel is closed.
type External interface {
	Send(ctx context.Context, env Envelope) error
	Inbound() <-chan Envelope
	Close() error
}

var _ Layer = (*Portal)(nil)

// Portal is the owns-the-external-connection half of an outward
// transporter layer (spec.md §4.6). It embeds a Forwarder so it
// supports local publish/subscribe exactly like any sibling Forwarder,
// and additionally drains ForwardGroup (from itself and every sibling
// Forwarder) out to External, and republishes whatever External
// delivers back in on ReceiveGroup.
type Portal struct {
	*Forwarder

	ext        External
	log        logger.Logger
	drainOwner uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPortal returns a Portal atop inner, using registry to serialize
// outgoing and parse incoming values. forwarderOwner and drainOwner
// must be distinct goroutine-identity values reserved for this
// Portal's internal use.
func NewPortal(inner Layer, registry *serialize.Registry, ext External, forwarderOwner, drainOwner uint64, log logger.Logger) (*Portal, error) {
	f, err := NewForwarder(inner, registry, forwarderOwner, log)
	if err != nil {
		return nil, err
	}

	p := &Portal{Forwarder: f, ext: ext, log: log, drainOwner: drainOwner}
	if _, err := inner.SubscribeRaw(drainOwner, f.forwardGroup, p.onOutgoing); err != nil {
		return nil, err
	}
	return p, nil
}

// Start runs the Forwarder's inbound dispatch loop, the outgoing drain
// loop, and the External inbound reader, until ctx is cancelled or
// Stop is called.
func (p *Portal) Start(ctx context.Context) {
	p.Forwarder.Start(ctx)

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if _, err := p.inner.Poll(p.drainOwner, pollInterval); err != nil {
				p.log.Warn(fmt.Sprintf("portal outgoing drain poll: %s", err))
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-p.ext.Inbound():
				if !ok {
					return
				}
				if err := p.inner.PublishRaw(p.drainOwner, p.receiveGroup, env); err != nil {
					p.log.Warn(fmt.Sprintf("portal inbound republish: %s", err))
				}
			}
		}
	}()
}

// Stop cancels every background loop, waits for them to exit, and
// closes the External connection.
func (p *Portal) Stop() error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	p.Forwarder.Stop()
	return p.ext.Close()
}

func (p *Portal) onOutgoing(v interface{}) {
	env, ok := v.(Envelope)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.ext.Send(ctx, env); err != nil {
		p.log.Warn(fmt.Sprintf("portal send failed for %s/%s: %s", env.Scheme, env.TypeName, err))
	}
}
