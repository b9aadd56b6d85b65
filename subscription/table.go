// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"sync"
	"sync/atomic"

	"github.com/goby-project/goby-middleware/group"
)

type typedKey struct {
	group  string
	scheme group.Scheme
	typ    string
}

// Table is a per-layer table of active subscriptions. It is safe for
// concurrent use: a publisher thread dispatches against it while
// subscriber threads add and remove entries.
type Table struct {
	mu      sync.RWMutex
	nextID  uint64
	typed   map[typedKey]map[Handle]Subscription
	regexes map[Handle]Subscription
}

// NewTable returns an empty subscription table.
func NewTable() *Table {
	return &Table{
		typed:   make(map[typedKey]map[Handle]Subscription),
		regexes: make(map[Handle]Subscription),
	}
}

// AddTyped registers a Typed subscription and returns its Handle.
func (t *Table) AddTyped(sub Subscription) Handle {
	sub.Kind = Typed
	h := Handle(atomic.AddUint64(&t.nextID, 1))

	t.mu.Lock()
	defer t.mu.Unlock()

	k := typedKey{sub.Group.Name(), sub.Scheme, sub.Type}
	bucket, ok := t.typed[k]
	if !ok {
		bucket = make(map[Handle]Subscription)
		t.typed[k] = bucket
	}
	bucket[h] = sub
	return h
}

// AddRegex registers a Regex subscription and returns its Handle.
func (t *Table) AddRegex(sub Subscription) Handle {
	sub.Kind = Regex
	h := Handle(atomic.AddUint64(&t.nextID, 1))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.regexes[h] = sub
	return h
}

// Remove unsubscribes a single handle, typed or regex.
func (t *Table) Remove(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, bucket := range t.typed {
		if _, ok := bucket[h]; ok {
			delete(bucket, h)
			if len(bucket) == 0 {
				delete(t.typed, k)
			}
			return
		}
	}
	delete(t.regexes, h)
}

// RemoveOwner implements unsubscribe_all(): every subscription whose
// OwnerThread equals owner is removed. Idempotent.
func (t *Table) RemoveOwner(owner uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, bucket := range t.typed {
		for h, sub := range bucket {
			if sub.OwnerThread == owner {
				delete(bucket, h)
			}
		}
		if len(bucket) == 0 {
			delete(t.typed, k)
		}
	}
	for h, sub := range t.regexes {
		if sub.OwnerThread == owner {
			delete(t.regexes, h)
		}
	}
}

// Typed returns every Typed subscription exactly matching
// (groupName, scheme, typeName).
func (t *Table) Typed(groupName string, scheme group.Scheme, typeName string) []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bucket := t.typed[typedKey{groupName, scheme, typeName}]
	out := make([]Subscription, 0, len(bucket))
	for _, sub := range bucket {
		out = append(out, sub)
	}
	return out
}

// TypedByNumeric returns every Typed subscription bound to (scheme,
// typeName) whose Group's numeric tag equals numeric, regardless of
// the subscription's string group name. Intervehicle frames only carry
// a numeric group tag (spec.md §3: "numeric groups are mandatory on
// intervehicle"), so a portal dispatching a received frame cannot key
// directly into the typed map the way Typed does; this scans every
// bucket registered under (scheme, typeName) instead.
func (t *Table) TypedByNumeric(scheme group.Scheme, typeName string, numeric uint8) []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Subscription
	for k, bucket := range t.typed {
		if k.scheme != scheme || k.typ != typeName {
			continue
		}
		for _, sub := range bucket {
			if sub.Group.Numeric() == numeric {
				out = append(out, sub)
			}
		}
	}
	return out
}

// MatchingRegex evaluates every Regex subscription against
// (groupName, typeName) and returns the matches. Per spec.md §4.5, a
// dispatching layer should post at most one forwarded regex delivery
// per message even if several regex subscriptions match; callers that
// need that behavior should take only the first element.
func (t *Table) MatchingRegex(groupName, typeName string) []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Subscription
	for _, sub := range t.regexes {
		if sub.Matches(groupName, typeName) {
			out = append(out, sub)
		}
	}
	return out
}

// Empty reports whether the table has no subscriptions at all.
func (t *Table) Empty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.typed) == 0 && len(t.regexes) == 0
}
