// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package intervehicle

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/goby-project/goby-middleware/buffer"
	"github.com/goby-project/goby-middleware/group"
)

// subscriptionRecordType names the Subscription record on the wire,
// per spec.md §4.8: "serialise a Subscription record (dccl-id, group,
// publisher-id hints, buffer config) and transmit it as a publication
// on a reserved subscription group."
const subscriptionRecordType = "goby.SubscriptionRecord"

// subscriptionRecord is what Portal.Subscribe transmits so the remote
// portal knows to create a matching sub-buffer and start forwarding.
type subscriptionRecord struct {
	DCCLID          uint16
	Group           group.Group
	PublisherIDHint string
	Buffer          buffer.Config
}

func (s subscriptionRecord) pack() []byte {
	name := []byte(s.Group.Name())
	hint := []byte(s.PublisherIDHint)

	buf := make([]byte, 0, 2+1+2+len(name)+2+len(hint)+8+8+4+8+1)
	buf = appendUint16(buf, s.DCCLID)
	buf = append(buf, s.Group.Numeric())
	buf = appendUint16(buf, uint16(len(name)))
	buf = append(buf, name...)
	buf = appendUint16(buf, uint16(len(hint)))
	buf = append(buf, hint...)
	buf = appendUint64(buf, uint64(s.Buffer.TTL))
	buf = appendUint64(buf, math.Float64bits(s.Buffer.ValueBase))
	buf = appendUint32(buf, uint32(s.Buffer.MaxQueue))
	buf = appendUint64(buf, uint64(s.Buffer.BlackoutTime))

	var flags byte
	if s.Buffer.NewestFirst {
		flags |= 1
	}
	if s.Buffer.AckRequired {
		flags |= 2
	}
	buf = append(buf, flags)
	return buf
}

func unpackSubscriptionRecord(data []byte) (subscriptionRecord, error) {
	var s subscriptionRecord
	if len(data) < 3 {
		return s, fmt.Errorf("subscriptionRecord: too short: %d bytes", len(data))
	}
	s.DCCLID = binary.BigEndian.Uint16(data[0:2])
	numeric := data[2]
	rest := data[3:]

	name, rest, err := readString(rest)
	if err != nil {
		return s, fmt.Errorf("subscriptionRecord: group name: %w", err)
	}
	hint, rest, err := readString(rest)
	if err != nil {
		return s, fmt.Errorf("subscriptionRecord: publisher hint: %w", err)
	}
	if len(rest) < 8+8+4+8+1 {
		return s, fmt.Errorf("subscriptionRecord: truncated buffer config")
	}

	s.Group = group.NewBoth(name, numeric)
	s.PublisherIDHint = hint
	s.Buffer.TTL = time.Duration(binary.BigEndian.Uint64(rest[0:8]))
	s.Buffer.ValueBase = math.Float64frombits(binary.BigEndian.Uint64(rest[8:16]))
	s.Buffer.MaxQueue = int(binary.BigEndian.Uint32(rest[16:20]))
	s.Buffer.BlackoutTime = time.Duration(binary.BigEndian.Uint64(rest[20:28]))
	flags := rest[28]
	s.Buffer.NewestFirst = flags&1 != 0
	s.Buffer.AckRequired = flags&2 != 0
	return s, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("length prefix truncated")
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	data = data[2:]
	if len(data) < n {
		return "", nil, fmt.Errorf("string body truncated")
	}
	return string(data[:n]), data[n:], nil
}
