// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import (
	"encoding/binary"
	"fmt"
)

// HealthState is the three-valued severity the original's
// health_monitor_thread.cpp aggregates by straight numeric comparison
// ("if thread_health.state() > health_state"); States are ordered
// worst-last so that comparison is exactly WorstOf's tie-break.
type HealthState int32

const (
	HealthOK HealthState = iota
	HealthDegraded
	HealthFailed
)

func (s HealthState) String() string {
	switch s {
	case HealthOK:
		return "OK"
	case HealthDegraded:
		return "DEGRADED"
	case HealthFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("HealthState(%d)", int32(s))
	}
}

// WorstOf returns the more severe of a and b.
func WorstOf(a, b HealthState) HealthState {
	if b > a {
		return b
	}
	return a
}

// ThreadHealth is one goroutine's answer to a HealthRequest: its
// stable identity (Name, UID) and its self-assessed State.
type ThreadHealth struct {
	Name  string
	UID   uint64
	State HealthState
}

// ProcessHealth is a Monitor's reply: the process's own identity (Name,
// PID), its main thread's health, and every registered child thread's
// health, aggregated into the process's overall State by WorstOf.
type ProcessHealth struct {
	Name     string
	PID      int32
	Main     ThreadHealth
	Children []ThreadHealth
	State    HealthState
}

// Aggregate recomputes p.State as the worst of p.Main and p.Children,
// per `src/middleware/coroner/health_monitor_thread.cpp`'s loop().
func (p *ProcessHealth) Aggregate() {
	state := p.Main.State
	for _, c := range p.Children {
		state = WorstOf(state, c.State)
	}
	p.State = state
}

// HealthRequest carries no fields; its receipt alone is the signal.
type HealthRequest struct{}

// --- proto.Message wiring -------------------------------------------------
//
// These types ship their own Marshal/Unmarshal rather than relying on
// gogo/protobuf's reflection-based struct-tag path (no protoc step in
// this module, see SPEC_FULL.md §C); gogo/protobuf's proto.Marshal and
// proto.Unmarshal both special-case a type implementing the Marshaler/
// Unmarshaler fast-path interfaces and call straight through to it, so
// serialize.NewProtobufHandler still drives real gogo/protobuf entry
// points end to end.

func (m *HealthRequest) Reset()         { *m = HealthRequest{} }
func (m *HealthRequest) String() string { return "HealthRequest{}" }
func (*HealthRequest) ProtoMessage()    {}

func (m *HealthRequest) Marshal() ([]byte, error) { return nil, nil }
func (m *HealthRequest) Unmarshal([]byte) error   { return nil }

func (m *ThreadHealth) Reset() { *m = ThreadHealth{} }
func (m *ThreadHealth) String() string {
	return fmt.Sprintf("ThreadHealth{Name: %q, UID: %d, State: %s}", m.Name, m.UID, m.State)
}
func (*ThreadHealth) ProtoMessage() {}

func (m *ThreadHealth) Marshal() ([]byte, error) {
	buf := appendString(nil, m.Name)
	buf = appendUint64(buf, m.UID)
	buf = appendUint32(buf, uint32(m.State))
	return buf, nil
}

func (m *ThreadHealth) Unmarshal(data []byte) error {
	name, rest, err := readString(data)
	if err != nil {
		return fmt.Errorf("ThreadHealth: name: %w", err)
	}
	if len(rest) < 12 {
		return fmt.Errorf("ThreadHealth: truncated")
	}
	m.Name = name
	m.UID = binary.BigEndian.Uint64(rest[0:8])
	m.State = HealthState(binary.BigEndian.Uint32(rest[8:12]))
	return nil
}

func (m *ProcessHealth) Reset() { *m = ProcessHealth{} }
func (m *ProcessHealth) String() string {
	return fmt.Sprintf("ProcessHealth{Name: %q, PID: %d, State: %s, Children: %d}",
		m.Name, m.PID, m.State, len(m.Children))
}
func (*ProcessHealth) ProtoMessage() {}

func (m *ProcessHealth) Marshal() ([]byte, error) {
	buf := appendString(nil, m.Name)
	buf = appendUint32(buf, uint32(m.PID))
	buf = appendUint32(buf, uint32(m.State))

	mainBytes, err := m.Main.Marshal()
	if err != nil {
		return nil, err
	}
	buf = appendUint32(buf, uint32(len(mainBytes)))
	buf = append(buf, mainBytes...)

	if len(m.Children) > 0xFFFF {
		return nil, fmt.Errorf("ProcessHealth: %d children exceeds 65535-entry limit", len(m.Children))
	}
	buf = appendUint16(buf, uint16(len(m.Children)))
	for _, c := range m.Children {
		cb, err := c.Marshal()
		if err != nil {
			return nil, err
		}
		buf = appendUint32(buf, uint32(len(cb)))
		buf = append(buf, cb...)
	}
	return buf, nil
}

func (m *ProcessHealth) Unmarshal(data []byte) error {
	name, rest, err := readString(data)
	if err != nil {
		return fmt.Errorf("ProcessHealth: name: %w", err)
	}
	if len(rest) < 8 {
		return fmt.Errorf("ProcessHealth: truncated header")
	}
	m.Name = name
	m.PID = int32(binary.BigEndian.Uint32(rest[0:4]))
	m.State = HealthState(binary.BigEndian.Uint32(rest[4:8]))
	rest = rest[8:]

	mainLen, rest, err := readUint32Prefixed(rest)
	if err != nil {
		return fmt.Errorf("ProcessHealth: main: %w", err)
	}
	if err := m.Main.Unmarshal(mainLen); err != nil {
		return fmt.Errorf("ProcessHealth: main: %w", err)
	}

	if len(rest) < 2 {
		return fmt.Errorf("ProcessHealth: truncated child count")
	}
	count := int(binary.BigEndian.Uint16(rest[0:2]))
	rest = rest[2:]

	m.Children = make([]ThreadHealth, 0, count)
	for i := 0; i < count; i++ {
		var childBytes []byte
		childBytes, rest, err = readUint32Prefixed(rest)
		if err != nil {
			return fmt.Errorf("ProcessHealth: child %d: %w", i, err)
		}
		var c ThreadHealth
		if err := c.Unmarshal(childBytes); err != nil {
			return fmt.Errorf("ProcessHealth: child %d: %w", i, err)
		}
		m.Children = append(m.Children, c)
	}
	return nil
}
