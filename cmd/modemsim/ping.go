// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/binary"
	"fmt"
)

// ping is a minimal message used to exercise the intervehicle link: a
// monotonically increasing Sequence plus a short free-text Payload. It
// implements serialize.DCCLCodec directly (Pack/Unpack), standing in
// for a compiled DCCL schema the same way serialize/dccl.go documents
// (spec.md §1 puts the real DCCL bit-level codec out of scope).
type ping struct {
	Sequence int32
	Payload  string
}

func (p *ping) Pack() ([]byte, error) {
	buf := make([]byte, 4, 4+2+len(p.Payload))
	binary.BigEndian.PutUint32(buf, uint32(p.Sequence))
	if len(p.Payload) > 0xFFFF {
		return nil, fmt.Errorf("ping: payload too long")
	}
	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(p.Payload)))
	buf = append(buf, length...)
	buf = append(buf, p.Payload...)
	return buf, nil
}

func (p *ping) Unpack(data []byte) error {
	if len(data) < 6 {
		return fmt.Errorf("ping: truncated frame")
	}
	p.Sequence = int32(binary.BigEndian.Uint32(data[0:4]))
	length := int(binary.BigEndian.Uint16(data[4:6]))
	if len(data) < 6+length {
		return fmt.Errorf("ping: truncated payload")
	}
	p.Payload = string(data[6 : 6+length])
	return nil
}
