// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package intervehicle implements the C8 portal that drives a physical
// modem link: a priority buffer per destination/sub-buffer, a
// data-request/ack/expire handshake with a pluggable ModemDriver, and
// subscription propagation so the far side learns what to forward.
package intervehicle

import "fmt"

// ExpireReason names why a buffered entry never made it across the
// link, drawn from spec.md §4.8.
type ExpireReason int

const (
	// ExpiredTTL fired because the entry's age exceeded its sub-buffer's
	// configured TTL.
	ExpiredTTL ExpireReason = iota
	// ExpiredNoSubscribers fired because the modem driver reported, via
	// its expire signal, that it gave up on the frame carrying the entry.
	ExpiredNoSubscribers
	// ExpiredBufferOverflow fired because push() evicted the entry to
	// make room under MaxQueue.
	ExpiredBufferOverflow
)

func (r ExpireReason) String() string {
	switch r {
	case ExpiredTTL:
		return "EXPIRED_TTL"
	case ExpiredNoSubscribers:
		return "EXPIRED_NO_SUBSCRIBERS"
	case ExpiredBufferOverflow:
		return "EXPIRED_BUFFER_OVERFLOW"
	default:
		return fmt.Sprintf("expire_reason(%d)", int(r))
	}
}

// AckData is delivered to every registered ack callback when the modem
// driver reports an entry as received by the far side.
type AckData struct {
	Destination  uint8
	TypeName     string
	Group        string
	GroupNumeric uint8
	Value        interface{}
}

// ExpireData is delivered to every registered expire callback when an
// entry is removed from the buffer without ever being acknowledged.
type ExpireData struct {
	Destination  uint8
	TypeName     string
	Group        string
	GroupNumeric uint8
	Value        interface{}
	Reason       ExpireReason
}

// AckCallback receives AckData for every acked publication the portal
// carries, across all destinations and types; callers filter by
// TypeName/Group/GroupNumeric/Destination as needed (see
// Portal.SubscribeAck).
type AckCallback func(AckData)

// ExpireCallback receives ExpireData for every expired publication, by
// the same all-publications convention as AckCallback.
type ExpireCallback func(ExpireData)
