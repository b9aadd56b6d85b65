// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package intervehicle

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/goby-project/goby-middleware/buffer"
	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/serialize"
	"github.com/goby-project/goby-middleware/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringHandler struct{}

func (stringHandler) Serialize(v interface{}) ([]byte, error) { return []byte(v.(string)), nil }
func (stringHandler) Parse(data []byte) (interface{}, error)  { return string(data), nil }
func (stringHandler) TypeName() string                        { return "String" }

// loopbackModem simulates a physical acoustic link between exactly two
// Portals: it polls its own side's data-request on a short tick,
// hands any assembled frame straight to the peer's receive callback,
// and immediately reports the frame acked to simulate a lossless link.
// autoAck=false modems never ack and report every frame expired
// instead, so their own portal's publications expire.
type loopbackModem struct {
	dataReq  func(int) []byte
	receive  func([]byte)
	ack      func(FrameID)
	expire   func(FrameID)
	peer     *loopbackModem
	maxBytes int
	autoAck  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func newLoopbackModem(maxBytes int, autoAck bool) *loopbackModem {
	return &loopbackModem{maxBytes: maxBytes, autoAck: autoAck}
}

func (m *loopbackModem) SetDataRequest(cb func(int) []byte) { m.dataReq = cb }
func (m *loopbackModem) SetReceive(cb func([]byte))         { m.receive = cb }
func (m *loopbackModem) SetAck(cb func(FrameID))            { m.ack = cb }
func (m *loopbackModem) SetExpire(cb func(FrameID))         { m.expire = cb }

func (m *loopbackModem) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
	return nil
}

func (m *loopbackModem) tick() {
	if m.dataReq == nil {
		return
	}
	frame := m.dataReq(m.maxBytes)
	if frame == nil {
		return
	}
	id, _, err := decodeFrame(frame)
	if err != nil {
		return
	}
	if m.peer != nil && m.peer.receive != nil {
		m.peer.receive(frame)
	}
	if m.autoAck && m.ack != nil {
		m.ack(id)
	} else if !m.autoAck && m.expire != nil {
		m.expire(id)
	}
}

func (m *loopbackModem) Stop() error {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	return nil
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New(io.Discard, "debug")
	require.NoError(t, err)
	return log
}

func testConfig() Config {
	return Config{
		AckTimeout:    50 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
		MaxFrameBytes: 512,
	}
}

func newLinkedPair(t *testing.T, autoAck bool) (*Portal, *Portal, func()) {
	t.Helper()
	registry := serialize.NewRegistry()
	require.NoError(t, registry.Register(group.SchemeDCCL, stringHandler{}))

	modemA := newLoopbackModem(512, autoAck)
	modemB := newLoopbackModem(512, autoAck)
	modemA.peer, modemB.peer = modemB, modemA

	portalA := NewPortal(registry, modemA, testLogger(t), testConfig())
	portalB := NewPortal(registry, modemB, testLogger(t), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, portalA.Start(ctx))
	require.NoError(t, portalB.Start(ctx))

	return portalA, portalB, func() {
		portalA.Stop()
		portalB.Stop()
		cancel()
	}
}

func TestPortalSubscriptionPropagationAndDelivery(t *testing.T) {
	portalA, portalB, stop := newLinkedPair(t, true)
	defer stop()

	received := make(chan string, 1)
	g := group.NewBoth("nav", 7)
	_, err := portalB.Subscribe(1, g, group.SchemeDCCL, "String", func(v interface{}) {
		received <- v.(string)
	})
	require.NoError(t, err)

	// Give the subscription record time to propagate across the link
	// before publishing, so portalA has created the matching sub-buffer.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, portalA.Publish(2, g, group.SchemeDCCL, "String", "hello", transport.Config{}))

	select {
	case s := <-received:
		assert.Equal(t, "hello", s)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the publication")
	}
}

func TestPortalAckFiresAckCallback(t *testing.T) {
	portalA, _, stop := newLinkedPair(t, true)
	defer stop()

	acked := make(chan AckData, 1)
	portalA.SubscribeAck(func(a AckData) { acked <- a })

	g := group.NewBoth("nav", 1)
	ackRequired := true
	cfg := transport.Config{AckRequired: &ackRequired}
	require.NoError(t, portalA.Publish(1, g, group.SchemeDCCL, "String", "payload", cfg))

	select {
	case a := <-acked:
		assert.Equal(t, "String", a.TypeName)
	case <-time.After(2 * time.Second):
		t.Fatal("ack callback never fired")
	}
}

func TestPortalExpireFiresWhenDriverNeverAcks(t *testing.T) {
	portalA, _, stop := newLinkedPair(t, false)
	defer stop()

	expired := make(chan ExpireData, 1)
	portalA.SubscribeExpire(func(e ExpireData) { expired <- e })

	g := group.NewBoth("nav", 2)
	ackRequired := true
	cfg := transport.Config{AckRequired: &ackRequired}
	require.NoError(t, portalA.Publish(1, g, group.SchemeDCCL, "String", "payload", cfg))

	select {
	case e := <-expired:
		assert.Equal(t, ExpiredNoSubscribers, e.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("expire callback never fired")
	}
}

func TestPortalTTLSweepExpiresUnsentEntries(t *testing.T) {
	registry := serialize.NewRegistry()
	require.NoError(t, registry.Register(group.SchemeDCCL, stringHandler{}))

	modem := newLoopbackModem(512, true)
	cfg := testConfig()
	cfg.SweepInterval = 5 * time.Millisecond
	portal := NewPortal(registry, modem, testLogger(t), cfg)
	modem.SetDataRequest(func(int) []byte { return nil }) // never drains the buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, portal.Start(ctx))
	defer portal.Stop()
	// Start rewires the driver's data-request after construction; pin it
	// back to the always-empty stub now that Start has run.
	modem.SetDataRequest(func(int) []byte { return nil })

	expired := make(chan ExpireData, 1)
	portal.SubscribeExpire(func(e ExpireData) { expired <- e })

	g := group.NewBoth("nav", 3)
	bufCfg := buffer.Config{TTL: 20 * time.Millisecond, MaxQueue: 4}
	require.NoError(t, portal.Publish(1, g, group.SchemeDCCL, "String", "x", transport.Config{Buffer: bufCfg}))

	select {
	case e := <-expired:
		assert.Equal(t, ExpiredTTL, e.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("TTL sweep never expired the unsent entry")
	}
}
