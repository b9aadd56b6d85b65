// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package intervehicle

import "context"

// FrameID names one outbound transmission unit so the driver's ack/
// expire signals can be matched back to the pending-ack entries the
// portal recorded when it built the frame.
type FrameID uint32

// ModemDriver is the plug-in contract spec.md §1 deliberately leaves
// out of scope ("the modem driver itself ... treated as a plug-in
// supplying data_request, receive, ack, expire signals over some wire
// protocol such as the WHOI Micro-Modem NMEA dialect"). Portal drives
// a ModemDriver; this module ships no concrete implementation beyond
// a loopback test double and the development-only simulator in
// cmd/modemsim.
type ModemDriver interface {
	// SetDataRequest registers the callback the driver invokes whenever
	// it has room to transmit. cb returns the frame bytes to send, or
	// nil if the portal has nothing queued.
	SetDataRequest(cb func(maxBytes int) []byte)
	// SetReceive registers the callback the driver invokes with the raw
	// bytes of a frame received from the far side.
	SetReceive(cb func(frame []byte))
	// SetAck registers the callback the driver invokes when the far
	// side confirms receipt of the frame named by id.
	SetAck(cb func(id FrameID))
	// SetExpire registers the callback the driver invokes when it gives
	// up retransmitting the frame named by id (e.g. link timeout),
	// distinct from the portal's own TTL-driven expiry sweep.
	SetExpire(cb func(id FrameID))

	// Start brings the link up. It must be safe to call after all four
	// Set* registrations.
	Start(ctx context.Context) error
	// Stop tears the link down.
	Stop() error
}
