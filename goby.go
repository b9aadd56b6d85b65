// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package goby ties together the layered publish/subscribe fabric:
// group and identifier addressing (package group), the serializer
// registry (package serialize), the subscription table (package
// subscription), the time-weighted priority buffer (package buffer),
// the transporter layers (package transport and its nats/rabbitmq
// children), the broker protocol (package broker), the intervehicle
// portal (package intervehicle), and the coroner health/terminate
// protocol (package coroner).
package goby

// Reserved group names used internally by forwarder/portal pairs and
// by the intervehicle subscription-propagation protocol. User code
// never publishes or subscribes to these directly.
const (
	// ForwardGroup carries a forwarder's outgoing publications to its
	// sibling portal on the forwarder's inner layer.
	ForwardGroup = "__goby_forward__"
	// ReceiveGroup carries a portal's inbound deliveries to every
	// forwarder sharing it, on the portal's inner layer.
	ReceiveGroup = "__goby_receive__"
	// SubscriptionGroup carries intervehicle Subscription propagation
	// records as DCCL messages on a reserved broadcast group.
	SubscriptionGroup = "__goby_subscription__"
)

// Version identifies the wire/protocol generation of this module. It
// is bumped when framing changes in a way that breaks compatibility
// with older builds, per spec.md's "no byte-for-byte stability of
// internal wire framing between versions" non-goal.
const Version = "1.0"
