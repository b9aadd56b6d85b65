// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import (
	"encoding/binary"
	"fmt"
)

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

func appendString(buf []byte, s string) []byte {
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...)
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

// readUint32Prefixed reads a uint32-length-prefixed byte blob, for
// nested message fields.
func readUint32Prefixed(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("length prefix truncated")
	}
	n := int(binary.BigEndian.Uint32(data[0:4]))
	data = data[4:]
	if len(data) < n {
		return nil, nil, fmt.Errorf("body truncated")
	}
	return data[:n], data[n:], nil
}
