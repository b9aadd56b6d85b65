// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package intervehicle

import (
	"fmt"
	"time"

	goby "github.com/goby-project/goby-middleware"
	"github.com/goby-project/goby-middleware/buffer"
	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/transport"
)

// subscriptionRecordDCCLID is the dccl-id Subscription propagation
// records carry; it's derived the same way any other type's id is, so
// a freshly started portal recognizes one even before registerType has
// ever been called for it locally.
var subscriptionRecordDCCLID = dcclIDFor(subscriptionRecordType)

// withAckBlackout raises cfg's BlackoutTime to at least AckTimeout when
// the sub-buffer requires acks, so such a sub-buffer supplies at most
// one entry per AckTimeout. It does not hold entries for re-offer:
// onDataRequest erases every framed entry from the buffer, ack-required
// ones are tracked only in pending-ack, and an entry whose frame is
// never acked is reported through the expire callbacks and is not
// retransmitted.
func (p *Portal) withAckBlackout(cfg buffer.Config) buffer.Config {
	if cfg.AckRequired && cfg.BlackoutTime < p.cfg.AckTimeout {
		cfg.BlackoutTime = p.cfg.AckTimeout
	}
	return cfg
}

func envSize(v interface{}) int {
	env, ok := v.(transport.Envelope)
	if !ok {
		return 0
	}
	return env.Size()
}

// propagateSubscription queues a Subscription record addressed to the
// reserved subscription group/numeric tag, per spec.md §4.8.
func (p *Portal) propagateSubscription(typeName string, g group.Group) error {
	record := subscriptionRecord{
		DCCLID: dcclIDFor(typeName),
		Group:  g,
		Buffer: p.cfg.SubscriptionBuffer,
	}
	payload := record.pack()
	now := time.Now()

	subGroup := group.NewBoth(goby.SubscriptionGroup, subscriptionGroupNumeric)
	cfg := transport.Config{Buffer: p.cfg.SubscriptionBuffer, Destination: 0}
	env := transport.Envelope{
		Scheme:             group.SchemeDCCL,
		TypeName:           subscriptionRecordType,
		Group:              subGroup,
		SerializeTimestamp: now,
		PublisherConfig:    cfg,
		Payload:            payload,
	}
	dest := buffer.Destination{Dest: 0, SubID: subIDFor(subscriptionRecordDCCLID, subscriptionGroupNumeric)}
	bufCfg := p.withAckBlackout(p.cfg.SubscriptionBuffer)

	p.mu.Lock()
	overflow, err := p.buf.Push(dest, env, now, &bufCfg)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	for _, fe := range overflow {
		p.fireExpire(fe, ExpiredBufferOverflow)
	}
	return nil
}

// onDataRequest is the ModemDriver's data-request signal handler
// (spec.md §4.8): it assembles as many eligible entries as fit under
// maxBytes into one frame, moving ack-required entries to pending-ack
// and discarding the rest once framed.
func (p *Portal) onDataRequest(maxBytes int) []byte {
	const headerBytes = 5
	const entryHeaderBytes = 7

	if maxBytes <= 0 || maxBytes > p.cfg.MaxFrameBytes {
		maxBytes = p.cfg.MaxFrameBytes
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		entries  []frameEntry
		tracked  []buffer.FullEntry
		ackFlags []bool
	)
	remaining := maxBytes - headerBytes

	for remaining > entryHeaderBytes {
		fe, err := p.buf.Top(time.Now(), buffer.WithMaxBytes(remaining, envSize))
		if err != nil {
			break
		}
		env, ok := fe.Entry.Value.(transport.Envelope)
		if !ok {
			p.buf.Erase(fe)
			continue
		}
		size := entryHeaderBytes + len(env.Payload)
		if size > remaining {
			break
		}

		p.buf.Erase(fe)
		remaining -= size

		ackRequired := env.PublisherConfig.EffectiveAckRequired()
		entries = append(entries, frameEntry{
			DCCLID:       dcclIDFor(env.TypeName),
			Destination:  fe.Destination.Dest,
			GroupNumeric: env.Group.Numeric(),
			AckRequested: ackRequired,
			Payload:      env.Payload,
		})
		tracked = append(tracked, fe)
		ackFlags = append(ackFlags, ackRequired)
	}

	if len(entries) == 0 {
		return nil
	}

	p.nextID++
	id := FrameID(p.nextID)
	frame, err := encodeFrame(id, entries)
	if err != nil {
		p.log.Warn(fmt.Sprintf("intervehicle: encode frame: %s", err))
		return nil
	}

	now := time.Now()
	var pend []pendingAck
	for i, fe := range tracked {
		if !ackFlags[i] {
			continue
		}
		env := fe.Entry.Value.(transport.Envelope)
		pend = append(pend, pendingAck{
			dest:     fe.Destination,
			entry:    fe.Entry,
			recordAt: now,
			ttl:      env.PublisherConfig.Buffer.Normalize().TTL,
		})
	}
	if len(pend) > 0 {
		p.pending[id] = pend
	}
	return frame
}

// onReceive is the ModemDriver's receive signal handler: it decodes the
// frame, handles any Subscription records specially, and dispatches
// everything else to matching local subscriptions.
func (p *Portal) onReceive(frame []byte) {
	id, entries, err := decodeFrame(frame)
	if err != nil {
		p.log.Warn(fmt.Sprintf("intervehicle: decode frame %v: %s", id, err))
		return
	}

	for _, e := range entries {
		if e.DCCLID == subscriptionRecordDCCLID {
			p.handleSubscriptionRecord(e.Payload)
			continue
		}
		p.dispatchReceived(e)
	}
}

func (p *Portal) handleSubscriptionRecord(payload []byte) {
	record, err := unpackSubscriptionRecord(payload)
	if err != nil {
		p.log.Warn(fmt.Sprintf("intervehicle: subscription record: %s", err))
		return
	}

	dest := buffer.Destination{Dest: 0, SubID: subIDFor(record.DCCLID, record.Group.Numeric())}
	bufCfg := p.withAckBlackout(record.Buffer.Normalize())

	p.mu.Lock()
	p.buf.CreateOrMerge(dest, bufCfg, time.Now())
	p.mu.Unlock()
}

func (p *Portal) dispatchReceived(e frameEntry) {
	p.mu.Lock()
	typeName, known := p.typeNames[e.DCCLID]
	scheme := p.typeSchemes[e.DCCLID]
	p.mu.Unlock()
	if !known {
		p.log.Warn(fmt.Sprintf("intervehicle: received frame for unregistered dccl-id %d", e.DCCLID))
		return
	}

	value, err := p.registry.Parse(scheme, typeName, e.Payload)
	if err != nil {
		p.log.Warn(fmt.Sprintf("intervehicle: parse %s: %s", typeName, err))
		return
	}

	for _, sub := range p.table.TypedByNumeric(scheme, typeName, e.GroupNumeric) {
		if sub.Callback != nil {
			sub.Callback(value)
		}
	}
}

// onAck is the ModemDriver's ack signal handler: every pending-ack
// entry recorded under id fires its ack event and is forgotten.
func (p *Portal) onAck(id FrameID) {
	p.mu.Lock()
	pend := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	for _, pa := range pend {
		p.fireAck(buffer.FullEntry{Destination: pa.dest, Entry: pa.entry})
	}
}

// onDriverExpire is the ModemDriver's expire signal handler: the link
// gave up retransmitting id, most plausibly because nothing on the far
// end is subscribed to claim it.
func (p *Portal) onDriverExpire(id FrameID) {
	p.mu.Lock()
	pend := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()

	for _, pa := range pend {
		p.fireExpire(buffer.FullEntry{Destination: pa.dest, Entry: pa.entry}, ExpiredNoSubscribers)
	}
}

// sweep implements the expiry sweep of spec.md §4.8: every tick it
// expires aged-out buffer entries and prunes pending-ack entries older
// than ttl_max + grace.
func (p *Portal) sweep(now time.Time) {
	p.mu.Lock()
	expired := p.buf.Expire(now)

	var prunedAcks []pendingAck
	for id, pend := range p.pending {
		var kept []pendingAck
		for _, pa := range pend {
			if now.Sub(pa.recordAt) > pa.ttl+ttlGrace {
				prunedAcks = append(prunedAcks, pa)
				continue
			}
			kept = append(kept, pa)
		}
		if len(kept) == 0 {
			delete(p.pending, id)
		} else {
			p.pending[id] = kept
		}
	}
	p.mu.Unlock()

	for _, fe := range expired {
		p.fireExpire(fe, ExpiredTTL)
	}
	for _, pa := range prunedAcks {
		p.fireExpire(buffer.FullEntry{Destination: pa.dest, Entry: pa.entry}, ExpiredTTL)
	}
}
