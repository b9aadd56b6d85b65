// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package transport_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/serialize"
	"github.com/goby-project/goby-middleware/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringHandler is a test-only serialize.Handler for plain strings,
// standing in for a real codec so forwarder/portal tests don't need a
// generated protobuf type.
type stringHandler struct{}

func (stringHandler) Serialize(v interface{}) ([]byte, error) { return []byte(v.(string)), nil }
func (stringHandler) Parse(data []byte) (interface{}, error)  { return string(data), nil }
func (stringHandler) TypeName() string                        { return "String" }

// loopbackExternal connects a Portal's outgoing Send calls directly to
// its own Inbound channel, simulating a broker that echoes every
// publication back to every subscriber on one host.
type loopbackExternal struct {
	inbound chan transport.Envelope
}

func newLoopback() *loopbackExternal {
	return &loopbackExternal{inbound: make(chan transport.Envelope, 16)}
}

func (l *loopbackExternal) Send(_ context.Context, env transport.Envelope) error {
	l.inbound <- env
	return nil
}

func (l *loopbackExternal) Inbound() <-chan transport.Envelope { return l.inbound }

func (l *loopbackExternal) Close() error {
	close(l.inbound)
	return nil
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.New(io.Discard, "debug")
	require.NoError(t, err)
	return log
}

func TestPortalRoundTripsThroughLoopback(t *testing.T) {
	registry := serialize.NewRegistry()
	require.NoError(t, registry.Register(group.SchemeProtobuf, stringHandler{}))

	inner := transport.NewInterthread(transport.NewPoller())
	portal, err := transport.NewPortal(inner, registry, newLoopback(), 100, 101, testLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	portal.Start(ctx)
	defer portal.Stop()

	const subscriber uint64 = 1
	received := make(chan string, 1)
	_, err = portal.Subscribe(subscriber, group.New("nav"), group.SchemeProtobuf, "String", func(v interface{}) {
		received <- v.(string)
	})
	require.NoError(t, err)

	require.NoError(t, portal.Publish(2, group.New("nav"), group.SchemeProtobuf, "String", "hello", transport.Config{}))

	select {
	case s := <-received:
		assert.Equal(t, "hello", s)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive looped-back publication")
	}
}

func TestForwarderRejectsCXXObjectScheme(t *testing.T) {
	registry := serialize.NewRegistry()
	inner := transport.NewInterthread(transport.NewPoller())
	fwd, err := transport.NewForwarder(inner, registry, 200, testLogger(t))
	require.NoError(t, err)

	err = fwd.Publish(1, group.New("nav"), group.SchemeCXXObject, "Position", "x", transport.Config{})
	assert.Error(t, err)
}
