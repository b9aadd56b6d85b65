// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package intervehicle

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// dcclIDFor derives the subbuffer-id's dccl-id component from a
// type-name. The real DCCL codec assigns ids from a compiled message
// schema; this module has no codec-generation step (out of scope per
// spec.md §1), so it derives a stable 16-bit id instead — deterministic
// across processes since it's a pure function of the type name.
func dcclIDFor(typeName string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(typeName))
	return uint16(h.Sum32())
}

// frameEntry is one payload packed into a frame, per the small header
// spec.md §4.10 describes: "the portal adds a small per-frame header
// carrying dccl-id, group numeric tag, and reserved ack bits."
type frameEntry struct {
	DCCLID       uint16
	Destination  uint8
	GroupNumeric uint8
	AckRequested bool
	Payload      []byte
}

// encodeFrame packs id and entries into the wire form a ModemDriver
// transmits: a 4-byte frame id, a 1-byte entry count, then per entry
// [dccl-id:2][destination:1][group-numeric:1][ack:1][len:2][payload].
func encodeFrame(id FrameID, entries []frameEntry) ([]byte, error) {
	if len(entries) > 255 {
		return nil, fmt.Errorf("encodeFrame: %d entries exceeds 255-entry frame limit", len(entries))
	}

	buf := make([]byte, 5)
	binary.BigEndian.PutUint32(buf, uint32(id))
	buf[4] = byte(len(entries))

	for _, e := range entries {
		if len(e.Payload) > 0xFFFF {
			return nil, fmt.Errorf("encodeFrame: payload of %d bytes exceeds 65535-byte entry limit", len(e.Payload))
		}
		head := make([]byte, 7)
		binary.BigEndian.PutUint16(head[0:2], e.DCCLID)
		head[2] = e.Destination
		head[3] = e.GroupNumeric
		if e.AckRequested {
			head[4] = 1
		}
		binary.BigEndian.PutUint16(head[5:7], uint16(len(e.Payload)))
		buf = append(buf, head...)
		buf = append(buf, e.Payload...)
	}
	return buf, nil
}

// decodeFrame reverses encodeFrame.
func decodeFrame(data []byte) (FrameID, []frameEntry, error) {
	if len(data) < 5 {
		return 0, nil, fmt.Errorf("decodeFrame: frame too short: %d bytes", len(data))
	}
	id := FrameID(binary.BigEndian.Uint32(data[0:4]))
	count := int(data[4])
	rest := data[5:]

	entries := make([]frameEntry, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < 7 {
			return 0, nil, fmt.Errorf("decodeFrame: truncated entry header at index %d", i)
		}
		var e frameEntry
		e.DCCLID = binary.BigEndian.Uint16(rest[0:2])
		e.Destination = rest[2]
		e.GroupNumeric = rest[3]
		e.AckRequested = rest[4] != 0
		length := int(binary.BigEndian.Uint16(rest[5:7]))
		rest = rest[7:]
		if len(rest) < length {
			return 0, nil, fmt.Errorf("decodeFrame: truncated payload at index %d", i)
		}
		e.Payload = rest[:length]
		rest = rest[length:]
		entries = append(entries, e)
	}
	return id, entries, nil
}
