// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package intervehicle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goby-project/goby-middleware/buffer"
	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/serialize"
	"github.com/goby-project/goby-middleware/subscription"
	"github.com/goby-project/goby-middleware/transport"
)

// subscriptionGroupNumeric is the reserved numeric tag Subscription
// propagation records travel under (spec.md §4.8's "reserved broadcast
// group"); ordinary traffic never uses it.
const subscriptionGroupNumeric uint8 = 254

// ttlGrace is how long past ttl_max a pending-ack entry is kept before
// the expiry sweep prunes it unconditionally, per spec.md §3: "an
// empirically one second beyond TTL grace period."
const ttlGrace = time.Second

// Config configures one Portal instance, binding it to a single
// ModemDriver-driven link.
type Config struct {
	// AckTimeout is the minimum blackout given to ack-required
	// sub-buffers (see withAckBlackout). Framed entries are removed from
	// the buffer when sent and are not re-offered while awaiting ack.
	AckTimeout time.Duration
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration
	// MaxFrameBytes caps how much payload Top-assembly packs per frame.
	MaxFrameBytes int
	// SubscriptionBuffer parameterizes the sub-buffer Subscription
	// propagation records themselves are queued in.
	SubscriptionBuffer buffer.Config
}

func (c Config) normalize() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 256
	}
	c.SubscriptionBuffer = c.SubscriptionBuffer.Normalize()
	c.SubscriptionBuffer.AckRequired = true
	return c
}

type pendingAck struct {
	dest     buffer.Destination
	entry    buffer.Entry
	recordAt time.Time
	ttl      time.Duration
}

// Portal implements transport.Layer over a ModemDriver (C8): outbound
// publications are prioritized into a DynamicBuffer and drained on the
// driver's data-request signal; acks and expirations are delivered as
// events; subscribe calls propagate a Subscription record to the far
// side.
type Portal struct {
	registry *serialize.Registry
	driver   ModemDriver
	log      logger.Logger
	cfg      Config

	mu      sync.Mutex
	buf     *buffer.DynamicBuffer
	pending map[FrameID][]pendingAck
	nextID  uint32

	typeNames   map[uint16]string
	typeSchemes map[uint16]group.Scheme

	table *subscription.Table

	eventMu         sync.Mutex
	ackCallbacks    map[subscription.Handle]AckCallback
	expireCallbacks map[subscription.Handle]ExpireCallback
	nextEventH      uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPortal returns a Portal driving driver, using registry to
// serialize/parse published values.
func NewPortal(registry *serialize.Registry, driver ModemDriver, log logger.Logger, cfg Config) *Portal {
	return &Portal{
		registry:        registry,
		driver:          driver,
		log:             log,
		cfg:             cfg.normalize(),
		buf:             buffer.NewDynamicBuffer(),
		pending:         make(map[FrameID][]pendingAck),
		typeNames:       make(map[uint16]string),
		typeSchemes:     make(map[uint16]group.Scheme),
		table:           subscription.NewTable(),
		ackCallbacks:    make(map[subscription.Handle]AckCallback),
		expireCallbacks: make(map[subscription.Handle]ExpireCallback),
	}
}

// Start registers the portal's callbacks with the driver, brings the
// link up, and starts the expiry sweep.
func (p *Portal) Start(ctx context.Context) error {
	p.driver.SetDataRequest(p.onDataRequest)
	p.driver.SetReceive(p.onReceive)
	p.driver.SetAck(p.onAck)
	p.driver.SetExpire(p.onDriverExpire)

	if err := p.driver.Start(ctx); err != nil {
		return fmt.Errorf("intervehicle: driver start: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.sweepLoop(ctx)
	return nil
}

// Stop stops the sweep loop and the driver.
func (p *Portal) Stop() error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return p.driver.Stop()
}

func (p *Portal) sweepLoop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(time.Now())
		}
	}
}

func (p *Portal) registerType(scheme group.Scheme, typeName string) uint16 {
	id := dcclIDFor(typeName)
	p.mu.Lock()
	p.typeNames[id] = typeName
	p.typeSchemes[id] = scheme
	p.mu.Unlock()
	return id
}

func subIDFor(dcclID uint16, groupNumeric uint8) string {
	return fmt.Sprintf("%d:%d", dcclID, groupNumeric)
}

// Publish implements transport.Layer. value is serialized via scheme
// and queued into the sub-buffer named by (cfg.Destination, dccl-id of
// typeName, g's numeric tag), created or merged on demand from
// cfg.Buffer.
func (p *Portal) Publish(_ uint64, g group.Group, scheme group.Scheme, typeName string, value interface{}, cfg transport.Config) error {
	if err := transport.RequireNumericGroup(g); err != nil {
		return err
	}

	payload, err := p.registry.Serialize(scheme, typeName, value)
	if err != nil {
		return fmt.Errorf("intervehicle: publish: %w", err)
	}

	id := p.registerType(scheme, typeName)
	now := time.Now()
	env := transport.Envelope{
		Scheme:             scheme,
		TypeName:           typeName,
		Group:              g,
		SerializeTimestamp: now,
		PublisherConfig:    cfg,
		Payload:            payload,
	}
	dest := buffer.Destination{Dest: cfg.Destination, SubID: subIDFor(id, g.Numeric())}
	bufCfg := p.withAckBlackout(cfg.Buffer.Normalize())

	p.mu.Lock()
	overflow, pushErr := p.buf.Push(dest, env, now, &bufCfg)
	p.mu.Unlock()
	if pushErr != nil {
		return fmt.Errorf("intervehicle: publish: %w", pushErr)
	}

	for _, fe := range overflow {
		p.fireExpire(fe, ExpiredBufferOverflow)
	}
	return nil
}

// Subscribe implements transport.Layer: it registers cb locally for
// parsed deliveries arriving over the link, then propagates a
// Subscription record to the far side so it starts forwarding matching
// publications. Subscribe does not return until the record is queued
// (not until the remote side acks it); callers that need confirmation
// should watch for a DCCL-level ack via SubscribeAck.
func (p *Portal) Subscribe(owner uint64, g group.Group, scheme group.Scheme, typeName string, cb subscription.TypedCallback) (subscription.Handle, error) {
	if err := transport.RequireNumericGroup(g); err != nil {
		return 0, err
	}
	p.registerType(scheme, typeName)

	h := p.table.AddTyped(subscription.Subscription{
		Group:       g,
		Scheme:      scheme,
		Type:        typeName,
		OwnerThread: owner,
		Callback:    cb,
	})

	if err := p.propagateSubscription(typeName, g); err != nil {
		p.log.Warn(fmt.Sprintf("intervehicle: subscription propagation failed: %s", err))
	}
	return h, nil
}

// SubscribeRegex implements transport.Layer.
func (p *Portal) SubscribeRegex(owner uint64, groupPattern, typePattern string, cb subscription.RegexCallback) (subscription.Handle, error) {
	sub, err := subscription.NewRegex(groupPattern, typePattern, owner, cb)
	if err != nil {
		return 0, err
	}
	return p.table.AddRegex(sub), nil
}

// Unsubscribe implements transport.Layer.
func (p *Portal) Unsubscribe(h subscription.Handle) { p.table.Remove(h) }

// UnsubscribeAll implements transport.Layer.
func (p *Portal) UnsubscribeAll(owner uint64) { p.table.RemoveOwner(owner) }

// Poll is a no-op for Portal: deliveries arrive asynchronously off the
// driver's receive callback and are dispatched inline (spec.md's
// single-process simplification, see DESIGN.md), so there is no
// per-owner inbox to drain.
func (p *Portal) Poll(_ uint64, _ time.Duration) (int, error) { return 0, nil }

// PublishRaw and SubscribeRaw are not meaningful for Portal: the
// reserved ForwardGroup/ReceiveGroup plumbing applies to inner-layer
// forwarder/portal pairs (package transport), not to the link-facing
// intervehicle portal, which has its own reserved subscription-group
// protocol instead.
func (p *Portal) PublishRaw(uint64, group.Group, interface{}) error {
	return fmt.Errorf("intervehicle: PublishRaw is not supported by Portal")
}

func (p *Portal) SubscribeRaw(uint64, group.Group, func(interface{})) (subscription.Handle, error) {
	return 0, fmt.Errorf("intervehicle: SubscribeRaw is not supported by Portal")
}

var _ transport.Layer = (*Portal)(nil)

// SubscribeAck registers cb to be invoked for every entry the driver
// acknowledges, across all destinations and types.
func (p *Portal) SubscribeAck(cb AckCallback) subscription.Handle {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	p.nextEventH++
	h := subscription.Handle(p.nextEventH)
	p.ackCallbacks[h] = cb
	return h
}

// SubscribeExpire registers cb to be invoked for every entry that
// expires without being acknowledged.
func (p *Portal) SubscribeExpire(cb ExpireCallback) subscription.Handle {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	p.nextEventH++
	h := subscription.Handle(p.nextEventH)
	p.expireCallbacks[h] = cb
	return h
}

// UnsubscribeAck/UnsubscribeExpire remove a previously registered
// callback.
func (p *Portal) UnsubscribeAck(h subscription.Handle) {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	delete(p.ackCallbacks, h)
}

func (p *Portal) UnsubscribeExpire(h subscription.Handle) {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	delete(p.expireCallbacks, h)
}

func (p *Portal) fireAck(fe buffer.FullEntry) {
	env, ok := fe.Entry.Value.(transport.Envelope)
	if !ok {
		return
	}
	data := AckData{
		Destination:  fe.Destination.Dest,
		TypeName:     env.TypeName,
		Group:        env.Group.Name(),
		GroupNumeric: env.Group.Numeric(),
		Value:        env.Payload,
	}
	p.eventMu.Lock()
	cbs := make([]AckCallback, 0, len(p.ackCallbacks))
	for _, cb := range p.ackCallbacks {
		cbs = append(cbs, cb)
	}
	p.eventMu.Unlock()
	for _, cb := range cbs {
		cb(data)
	}
}

func (p *Portal) fireExpire(fe buffer.FullEntry, reason ExpireReason) {
	env, ok := fe.Entry.Value.(transport.Envelope)
	if !ok {
		return
	}
	data := ExpireData{
		Destination:  fe.Destination.Dest,
		TypeName:     env.TypeName,
		Group:        env.Group.Name(),
		GroupNumeric: env.Group.Numeric(),
		Value:        env.Payload,
		Reason:       reason,
	}
	p.eventMu.Lock()
	cbs := make([]ExpireCallback, 0, len(p.expireCallbacks))
	for _, cb := range p.expireCallbacks {
		cbs = append(cbs, cb)
	}
	p.eventMu.Unlock()
	for _, cb := range cbs {
		cb(data)
	}
}
