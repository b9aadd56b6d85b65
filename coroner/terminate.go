// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/subscription"
	"github.com/goby-project/goby-middleware/transport"
)

// TerminateRequest asks the process named TargetName, or with pid
// TargetPID, to shut down. An empty TargetName with HasTargetPID false
// matches nothing, per `terminate.h`'s check_terminate: a request must
// carry at least one of the two fields to match anybody.
type TerminateRequest struct {
	TargetName   string
	HasTargetPID bool
	TargetPID    int32
}

// TerminateResponse confirms that the target matched and is shutting
// down, carrying the identity it matched against.
type TerminateResponse struct {
	TargetName string
	TargetPID  int32
}

func (m *TerminateRequest) Reset() { *m = TerminateRequest{} }
func (m *TerminateRequest) String() string {
	return fmt.Sprintf("TerminateRequest{TargetName: %q, TargetPID: %d}", m.TargetName, m.TargetPID)
}
func (*TerminateRequest) ProtoMessage() {}

func (m *TerminateRequest) Marshal() ([]byte, error) {
	buf := appendString(nil, m.TargetName)
	var hasPID byte
	if m.HasTargetPID {
		hasPID = 1
	}
	buf = append(buf, hasPID)
	buf = appendUint32(buf, uint32(m.TargetPID))
	return buf, nil
}

func (m *TerminateRequest) Unmarshal(data []byte) error {
	name, rest, err := readString(data)
	if err != nil {
		return fmt.Errorf("TerminateRequest: target name: %w", err)
	}
	if len(rest) < 5 {
		return fmt.Errorf("TerminateRequest: truncated")
	}
	m.TargetName = name
	m.HasTargetPID = rest[0] != 0
	m.TargetPID = int32(binary.BigEndian.Uint32(rest[1:5]))
	return nil
}

func (m *TerminateResponse) Reset() { *m = TerminateResponse{} }
func (m *TerminateResponse) String() string {
	return fmt.Sprintf("TerminateResponse{TargetName: %q, TargetPID: %d}", m.TargetName, m.TargetPID)
}
func (*TerminateResponse) ProtoMessage() {}

func (m *TerminateResponse) Marshal() ([]byte, error) {
	buf := appendString(nil, m.TargetName)
	buf = appendUint32(buf, uint32(m.TargetPID))
	return buf, nil
}

func (m *TerminateResponse) Unmarshal(data []byte) error {
	name, rest, err := readString(data)
	if err != nil {
		return fmt.Errorf("TerminateResponse: target name: %w", err)
	}
	if len(rest) < 4 {
		return fmt.Errorf("TerminateResponse: truncated")
	}
	m.TargetName = name
	m.TargetPID = int32(binary.BigEndian.Uint32(rest[0:4]))
	return nil
}

// CheckTerminate reports whether req names this process by appName or
// pid, mirroring `terminate.h`'s check_terminate free function exactly
// (name checked first, then pid).
func CheckTerminate(req TerminateRequest, appName string, pid int32) (bool, TerminateResponse) {
	resp := TerminateResponse{TargetName: appName, TargetPID: pid}
	switch {
	case req.TargetName != "" && req.TargetName == appName:
		return true, resp
	case req.HasTargetPID && req.TargetPID == pid:
		return true, resp
	default:
		return false, resp
	}
}

// ServeTerminate subscribes owner to TerminateRequestGroup on layer and
// answers any request matching appName or pid: it publishes a
// TerminateResponse then, unless quit is nil, calls quit() — the Go
// analogue of `terminate.h`'s subscribe_terminate(do_quit). Pass a nil
// quit to observe termination requests without acting on them (as
// ApplicationInterThread's preseed_hook variants do for aggregation
// points that should not die with their children). log may be nil, in
// which case a failed reply is dropped silently.
func ServeTerminate(layer transport.Layer, owner uint64, appName string, pid int32, quit func(), log logger.Logger) (subscription.Handle, error) {
	return layer.Subscribe(owner, healthGroup(TerminateRequestGroup), group.SchemeProtobuf, TerminateRequestType,
		func(v interface{}) {
			req, ok := v.(*TerminateRequest)
			if !ok {
				return
			}
			match, resp := CheckTerminate(*req, appName, pid)
			if !match {
				return
			}
			if err := layer.Publish(owner, healthGroup(TerminateResponseGroup), group.SchemeProtobuf, TerminateResponseType, &resp, transport.Config{}); err != nil && log != nil {
				log.Warn("coroner: publish terminate response: " + err.Error())
			}
			if quit != nil {
				quit()
			}
		})
}

// RequestTerminate publishes a TerminateRequest naming target (by name,
// if non-empty, otherwise by pid) and waits up to timeout for a
// TerminateResponse, the client side of the protocol `terminate.h`
// documents only the server side of (the CLI tool that sends it is out
// of this module's scope, see SPEC_FULL.md §1).
func RequestTerminate(ctx context.Context, layer transport.Layer, owner uint64, targetName string, targetPID int32, timeout time.Duration) (*TerminateResponse, error) {
	respCh := make(chan *TerminateResponse, 1)
	h, err := layer.Subscribe(owner, healthGroup(TerminateResponseGroup), group.SchemeProtobuf, TerminateResponseType,
		func(v interface{}) {
			if resp, ok := v.(*TerminateResponse); ok {
				select {
				case respCh <- resp:
				default:
				}
			}
		})
	if err != nil {
		return nil, err
	}
	defer layer.Unsubscribe(h)

	req := &TerminateRequest{TargetName: targetName, HasTargetPID: targetName == "", TargetPID: targetPID}
	if err := layer.Publish(owner, healthGroup(TerminateRequestGroup), group.SchemeProtobuf, TerminateRequestType, req, transport.Config{}); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("coroner: no terminate response within %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
