// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"time"

	goby "github.com/goby-project/goby-middleware"
	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/serialize"
	"github.com/goby-project/goby-middleware/subscription"
)

// pollInterval bounds how long a Forwarder/Portal's background drain
// loop blocks in one Poll call before re-checking its stop channel.
const pollInterval = 200 * time.Millisecond

// Forwarder is the no-external-connection half of an outward
// transporter layer (spec.md §4.6): it publishes its outgoing
// publications into its inner layer on ForwardGroup, where a sibling
// Portal picks them up, and dispatches inbound deliveries it receives
// on ReceiveGroup to its own local subscribers. Multiple Forwarders
// sharing one inner layer can coexist behind one Portal.
type Forwarder struct {
	inner    Layer
	registry *serialize.Registry
	log      logger.Logger

	forwardGroup  group.Group
	receiveGroup  group.Group
	internalOwner uint64

	table *subscription.Table

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Layer = (*Forwarder)(nil)

// NewForwarder returns a Forwarder atop inner. internalOwner must be a
// goroutine-identity value unique to this Forwarder instance (never
// reused by user-facing Subscribe/Poll calls), since it is the inbox
// key the Forwarder's own background dispatch loop drains.
func NewForwarder(inner Layer, registry *serialize.Registry, internalOwner uint64, log logger.Logger) (*Forwarder, error) {
	f := &Forwarder{
		inner:         inner,
		registry:      registry,
		log:           log,
		forwardGroup:  group.New(goby.ForwardGroup),
		receiveGroup:  group.New(goby.ReceiveGroup),
		internalOwner: internalOwner,
		table:         subscription.NewTable(),
	}

	if _, err := inner.SubscribeRaw(internalOwner, f.receiveGroup, f.dispatchInbound); err != nil {
		return nil, err
	}
	return f, nil
}

// Start runs the Forwarder's dispatch loop until ctx is cancelled or
// Stop is called.
func (f *Forwarder) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if _, err := f.inner.Poll(f.internalOwner, pollInterval); err != nil {
				f.log.Warn(fmt.Sprintf("forwarder dispatch poll: %s", err))
			}
		}
	}()
}

// Stop cancels the dispatch loop and waits for it to exit.
func (f *Forwarder) Stop() {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}

func (f *Forwarder) dispatchInbound(v interface{}) {
	env, ok := v.(Envelope)
	if !ok {
		return
	}

	for _, sub := range f.table.Typed(env.Group.Name(), env.Scheme, env.TypeName) {
		parsed, err := f.registry.Parse(env.Scheme, env.TypeName, env.Payload)
		if err != nil {
			f.log.Warn(fmt.Sprintf("forwarder parse failed for %s/%s: %s", env.Scheme, env.TypeName, err))
			continue
		}
		sub.Callback(parsed)
	}

	if matches := f.table.MatchingRegex(env.Group.Name(), env.TypeName); len(matches) > 0 {
		matches[0].RegexCallback(env.Group, env.Scheme, env.TypeName, env.Payload)
	}
}

// Publish serializes value under (scheme, typeName) and hands the
// resulting envelope to the inner layer's ForwardGroup, where the
// sibling Portal will pick it up and transmit it externally.
func (f *Forwarder) Publish(owner uint64, g group.Group, scheme group.Scheme, typeName string, value interface{}, cfg Config) error {
	if err := RequireStringGroup(g); err != nil {
		return err
	}
	if scheme == group.SchemeCXXObject {
		return fmt.Errorf("scheme cxx_object is interthread-only and cannot cross a layer boundary")
	}

	payload, err := f.registry.Serialize(scheme, typeName, value)
	if err != nil {
		return err
	}

	env := Envelope{
		Scheme:             scheme,
		TypeName:           typeName,
		Group:              g,
		SerializeTimestamp: time.Now(),
		PublisherConfig:    cfg,
		Payload:            payload,
	}
	return f.inner.PublishRaw(owner, f.forwardGroup, env)
}

// Subscribe registers a local typed subscriber; it fires when a
// matching envelope arrives on ReceiveGroup and is successfully
// parsed. Unlike Interthread's per-owner inbox, the callback runs
// directly on the Forwarder's background dispatch goroutine (see
// Start) rather than on a later call to Poll by owner — spec.md §4.6's
// "Interthread specifics" ties the per-thread-inbox/poll-drain model to
// the interthread layer specifically; outward layers only promise that
// Poll's return value reflects events handled on the calling owner's
// own inner-layer inbox (forwarded raw items, direct subscriptions made
// one layer further in).
func (f *Forwarder) Subscribe(owner uint64, g group.Group, scheme group.Scheme, typeName string, cb subscription.TypedCallback) (subscription.Handle, error) {
	if err := RequireStringGroup(g); err != nil {
		return 0, err
	}
	return f.table.AddTyped(subscription.Subscription{
		Group: g, Scheme: scheme, Type: typeName, OwnerThread: owner, Callback: cb,
	}), nil
}

// SubscribeRegex registers a local raw-bytes subscriber.
func (f *Forwarder) SubscribeRegex(owner uint64, groupPattern, typePattern string, cb subscription.RegexCallback) (subscription.Handle, error) {
	sub, err := subscription.NewRegex(groupPattern, typePattern, owner, cb)
	if err != nil {
		return 0, err
	}
	return f.table.AddRegex(sub), nil
}

// Unsubscribe removes a single local subscription.
func (f *Forwarder) Unsubscribe(h subscription.Handle) { f.table.Remove(h) }

// UnsubscribeAll removes every local subscription owned by owner.
func (f *Forwarder) UnsubscribeAll(owner uint64) { f.table.RemoveOwner(owner) }

// Poll delegates to the inner layer, innermost-first per spec.md §4.9:
// any inner-layer event is serviced before this layer would otherwise
// block.
func (f *Forwarder) Poll(owner uint64, timeout time.Duration) (int, error) {
	return f.inner.Poll(owner, timeout)
}

// PublishRaw and SubscribeRaw pass through to the inner layer; a
// Forwarder never terminates the reserved-group plumbing itself.
func (f *Forwarder) PublishRaw(owner uint64, g group.Group, value interface{}) error {
	return f.inner.PublishRaw(owner, g, value)
}

func (f *Forwarder) SubscribeRaw(owner uint64, g group.Group, cb func(interface{})) (subscription.Handle, error) {
	return f.inner.SubscribeRaw(owner, g, cb)
}
