// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"
	"time"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/subscription"
)

// delivery is one item waiting in a thread's inbox: either a typed
// callback ready to invoke with its parsed value, or a regex callback
// ready to invoke with the raw (group, scheme, type, payload) tuple.
type delivery struct {
	typed    bool
	raw      bool
	value    interface{}
	cb       subscription.TypedCallback
	rcb      subscription.RegexCallback
	rawCb    func(interface{})
	grp      group.Group
	scheme   group.Scheme
	typeName string
	payload  []byte
}

// inbox is the per-owner-thread mutex-protected deque of deliveries
// spec.md §4.6 describes: publishers enqueue, the owning thread drains
// it during Poll.
type inbox struct {
	mu    sync.Mutex
	items []delivery
}

func (ib *inbox) push(d delivery) {
	ib.mu.Lock()
	ib.items = append(ib.items, d)
	ib.mu.Unlock()
}

func (ib *inbox) drain() []delivery {
	ib.mu.Lock()
	items := ib.items
	ib.items = nil
	ib.mu.Unlock()
	return items
}

// rawSub is one SubscribeRaw registration: a group-keyed, type-agnostic
// delivery used by the ForwardGroup/ReceiveGroup plumbing.
type rawSub struct {
	handle subscription.Handle
	owner  uint64
	cb     func(interface{})
}

// Interthread is the innermost transporter layer (C6): zero-copy
// delivery between goroutines of one process. Publish never
// serializes; values travel as interface{} and the documented contract
// (spec.md §4.6) is that a publisher must not mutate a value after
// publishing it.
type Interthread struct {
	table  *subscription.Table
	poller *Poller

	mu      sync.Mutex
	inboxes map[uint64]*inbox
	raw     map[string][]rawSub
	nextRaw subscription.Handle
}

var _ Layer = (*Interthread)(nil)

// NewInterthread returns an Interthread layer sharing poller with the
// rest of its stack.
func NewInterthread(poller *Poller) *Interthread {
	return &Interthread{
		table:   subscription.NewTable(),
		poller:  poller,
		inboxes: make(map[uint64]*inbox),
		raw:     make(map[string][]rawSub),
	}
}

func (it *Interthread) ownerInbox(owner uint64) *inbox {
	it.mu.Lock()
	defer it.mu.Unlock()
	ib, ok := it.inboxes[owner]
	if !ok {
		ib = &inbox{}
		it.inboxes[owner] = ib
	}
	return ib
}

// Publish validates g, fans the value out to every matching typed
// subscriber's inbox, and posts to at most one matching regex
// subscriber (spec.md §4.5) to avoid duplicate delivery through a
// forwarder that fans out to multiple threads.
func (it *Interthread) Publish(owner uint64, g group.Group, scheme group.Scheme, typeName string, value interface{}, _ Config) error {
	if err := RequireStringGroup(g); err != nil {
		return err
	}

	for _, sub := range it.table.Typed(g.Name(), scheme, typeName) {
		it.ownerInbox(sub.OwnerThread).push(delivery{typed: true, value: value, cb: sub.Callback})
	}

	if matches := it.table.MatchingRegex(g.Name(), typeName); len(matches) > 0 {
		sub := matches[0]
		it.ownerInbox(sub.OwnerThread).push(delivery{
			rcb: sub.RegexCallback, grp: g, scheme: scheme, typeName: typeName,
		})
	}

	it.poller.Broadcast()
	return nil
}

// Subscribe registers cb to fire on the owning goroutine's next Poll
// for every publication matching (g, scheme, typeName) exactly.
func (it *Interthread) Subscribe(owner uint64, g group.Group, scheme group.Scheme, typeName string, cb subscription.TypedCallback) (subscription.Handle, error) {
	if err := RequireStringGroup(g); err != nil {
		return 0, err
	}
	it.ownerInbox(owner) // ensure the inbox exists before anyone can publish to it
	return it.table.AddTyped(subscription.Subscription{
		Group: g, Scheme: scheme, Type: typeName, OwnerThread: owner, Callback: cb,
	}), nil
}

// SubscribeRegex registers a raw-bytes callback for the given
// group/type patterns.
func (it *Interthread) SubscribeRegex(owner uint64, groupPattern, typePattern string, cb subscription.RegexCallback) (subscription.Handle, error) {
	it.ownerInbox(owner)
	sub, err := subscription.NewRegex(groupPattern, typePattern, owner, cb)
	if err != nil {
		return 0, err
	}
	return it.table.AddRegex(sub), nil
}

// Unsubscribe removes a single subscription, typed, regex, or raw.
func (it *Interthread) Unsubscribe(h subscription.Handle) {
	it.table.Remove(h)

	it.mu.Lock()
	defer it.mu.Unlock()
	for g, subs := range it.raw {
		for i, s := range subs {
			if s.handle == h {
				it.raw[g] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// UnsubscribeAll removes every subscription owned by owner, typed,
// regex, and raw. Idempotent.
func (it *Interthread) UnsubscribeAll(owner uint64) {
	it.table.RemoveOwner(owner)

	it.mu.Lock()
	defer it.mu.Unlock()
	for g, subs := range it.raw {
		kept := subs[:0]
		for _, s := range subs {
			if s.owner != owner {
				kept = append(kept, s)
			}
		}
		it.raw[g] = kept
	}
}

// Poll drains owner's inbox, invoking each queued callback on the
// calling goroutine. If the inbox is empty it waits on the shared
// poller up to timeout, re-checking after every wakeup (spurious or
// not) until the deadline passes.
func (it *Interthread) Poll(owner uint64, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	ib := it.ownerInbox(owner)

	for {
		items := ib.drain()
		if len(items) > 0 {
			for _, d := range items {
				switch {
				case d.raw:
					d.rawCb(d.value)
				case d.typed:
					d.cb(d.value)
				default:
					d.rcb(d.grp, d.scheme, d.typeName, d.payload)
				}
			}
			return len(items), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		it.poller.Wait(remaining)
	}
}

// PublishRaw fans value out to every SubscribeRaw registration on
// group g, with no scheme/type matching. Used by Forwarder/Portal
// plumbing to relay whole Envelope values.
func (it *Interthread) PublishRaw(owner uint64, g group.Group, value interface{}) error {
	if err := RequireStringGroup(g); err != nil {
		return err
	}

	it.mu.Lock()
	subs := append([]rawSub(nil), it.raw[g.Name()]...)
	it.mu.Unlock()

	for _, sub := range subs {
		it.ownerInbox(sub.owner).push(delivery{raw: true, value: value, rawCb: sub.cb})
	}
	it.poller.Broadcast()
	return nil
}

// SubscribeRaw registers cb to fire, on owner's next Poll, for every
// PublishRaw on group g.
func (it *Interthread) SubscribeRaw(owner uint64, g group.Group, cb func(interface{})) (subscription.Handle, error) {
	if err := RequireStringGroup(g); err != nil {
		return 0, err
	}
	it.ownerInbox(owner)

	it.mu.Lock()
	defer it.mu.Unlock()
	it.nextRaw++
	h := it.nextRaw
	it.raw[g.Name()] = append(it.raw[g.Name()], rawSub{handle: h, owner: owner, cb: cb})
	return h, nil
}
