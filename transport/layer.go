// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"time"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/pkg/errors"
	"github.com/goby-project/goby-middleware/subscription"
)

// ErrGroupValidation is returned when a group lacks the component its
// layer requires: inner layers require a non-empty string component,
// intervehicle requires a valid numeric tag. The original validates
// this at compile time via a template parameter; Go layers validate it
// at the publish/subscribe call site instead (SPEC_FULL.md §D).
var ErrGroupValidation = errors.New("group missing the component required by this layer")

// Layer is the fixed publish/subscribe/poll surface every transporter
// layer exposes (spec.md §4.6). owner identifies the calling
// goroutine's logical "thread" for inbox and unsubscribe-all purposes;
// callers mint a stable uint64 per goroutine that participates in
// pub/sub (see coroner.ThreadID for a generator tied to the health
// protocol).
type Layer interface {
	// Publish validates g for this layer, then publishes value. value is
	// passed verbatim to inner layers; outward layers serialize it via
	// the configured registry before transmitting.
	Publish(owner uint64, g group.Group, scheme group.Scheme, typeName string, value interface{}, cfg Config) error

	// Subscribe registers a typed callback for an exact (group, scheme,
	// type-name) triple.
	Subscribe(owner uint64, g group.Group, scheme group.Scheme, typeName string, cb subscription.TypedCallback) (subscription.Handle, error)

	// SubscribeRegex registers a raw-bytes callback for groups/types
	// matching the given patterns (empty pattern matches anything).
	SubscribeRegex(owner uint64, groupPattern, typePattern string, cb subscription.RegexCallback) (subscription.Handle, error)

	// Unsubscribe removes a single subscription.
	Unsubscribe(h subscription.Handle)

	// UnsubscribeAll removes every subscription owned by owner.
	// Idempotent.
	UnsubscribeAll(owner uint64)

	// Poll drains owner's pending deliveries, blocking up to timeout if
	// none are immediately available, and returns how many callbacks it
	// invoked.
	Poll(owner uint64, timeout time.Duration) (int, error)

	// PublishRaw and SubscribeRaw are the group-only plumbing path used
	// internally by Forwarder/Portal pairs to relay whole Envelope
	// values across the reserved ForwardGroup/ReceiveGroup (spec.md
	// §4.6), bypassing the scheme/type-exact matching regular
	// subscriptions require. User code does not call these directly.
	PublishRaw(owner uint64, g group.Group, value interface{}) error
	SubscribeRaw(owner uint64, g group.Group, cb func(interface{})) (subscription.Handle, error)
}

// RequireStringGroup validates the non-empty-string-component
// requirement of every inner layer (interthread, interprocess,
// intermodule).
func RequireStringGroup(g group.Group) error {
	if g.Name() == "" {
		return ErrGroupValidation
	}
	return nil
}

// RequireNumericGroup validates the numeric-tag requirement of the
// intervehicle layer.
func RequireNumericGroup(g group.Group) error {
	if !g.HasNumeric() {
		return ErrGroupValidation
	}
	return nil
}
