// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the C6 transporter layers (interthread,
// interprocess, intermodule, intervehicle forwarder/portal pairs) and
// the C9 cross-layer poller. Each layer exposes the same
// publish/subscribe/poll surface described in spec.md §4.6; Go
// interfaces and constructor-injected inner layers stand in for the
// original's CRTP template layering, per SPEC_FULL.md §D.
package transport

import (
	"hash/fnv"
	"time"

	"github.com/goby-project/goby-middleware/buffer"
	"github.com/goby-project/goby-middleware/group"
)

// Config is the per-publication TransporterConfig of spec.md §3: the
// metadata an envelope carries so a DynamicBuffer on the intervehicle
// path can create or merge the owning sub-buffer on demand.
type Config struct {
	// Buffer parameterizes the intervehicle sub-buffer this publication
	// should land in when it reaches the portal.
	Buffer buffer.Config
	// AckRequired overrides Buffer.AckRequired for this publication when
	// non-nil.
	AckRequired *bool
	// PublisherIDHint optionally names the originating thread/process
	// for diagnostics and for matching ack/expire callbacks back to a
	// specific publisher instance.
	PublisherIDHint string
	// Destination is the intervehicle routing target (0 is broadcast),
	// the first half of DynamicBuffer's (destination, sub-buffer-id) key.
	Destination uint8
}

// EffectiveAckRequired resolves whether this publication requires an
// ack: the per-publication override if set, else the buffer config.
func (c Config) EffectiveAckRequired() bool {
	if c.AckRequired != nil {
		return *c.AckRequired
	}
	return c.Buffer.AckRequired
}

// Envelope is the SerializerTransporterMessage of spec.md §3: the
// serialized form of a publication as it crosses a layer boundary.
type Envelope struct {
	Scheme             group.Scheme
	TypeName           string
	Group              group.Group
	SerializeTimestamp time.Time
	PublisherConfig    Config
	Payload            []byte
}

// Key is a stable identity for an envelope, used to key ack/expire
// callbacks (pending-ack map) so they survive the portal rewriting a
// zero source-id into a propagated Subscription record, per
// SPEC_FULL.md's design notes on "Ack/expire callbacks stored by
// envelope identity": (scheme, type, group, serialize-timestamp,
// payload-hash), never raw bytes or pointer identity.
type Key struct {
	Scheme       group.Scheme
	TypeName     string
	GroupName    string
	GroupNumeric uint8
	TimestampNS  int64
	PayloadHash  uint64
}

// Key computes e's identity key.
func (e Envelope) Key() Key {
	h := fnv.New64a()
	_, _ = h.Write(e.Payload)
	return Key{
		Scheme:       e.Scheme,
		TypeName:     e.TypeName,
		GroupName:    e.Group.Name(),
		GroupNumeric: e.Group.Numeric(),
		TimestampNS:  e.SerializeTimestamp.UnixNano(),
		PayloadHash:  h.Sum64(),
	}
}

// Size reports the envelope's on-wire footprint in bytes, used by
// DynamicBuffer's max-bytes filter during the intervehicle contest.
func (e Envelope) Size() int {
	return len(e.Payload) + len(e.TypeName) + len(e.Group.Name()) + 1
}
