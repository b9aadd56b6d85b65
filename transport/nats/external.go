// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package nats implements the interprocess portal's External
// connection (spec.md §4.6, §6) over a NATS core pub/sub connection:
// NATS's own subject-matching fan-out plays the XPUB/XSUB Router's
// role (§4.7), while the request/response Manager (hold state,
// endpoint discovery) is layered on top in package broker.
package nats

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/transport"
	natslib "github.com/nats-io/nats.go"
)

// subjectPrefix roots every goby identifier under one NATS subject
// space, mirroring the teacher's "channels" prefix in
// messaging/nats/pubsub.go.
const subjectPrefix = "goby"

// AllSubject is the wildcard subject a portal subscribes to receive
// every publication on the bus, analogous to the XPUB side of the
// Router forwarding everything a client's subscribe filter matches —
// here the filtering happens in Go against the decoded Envelope
// instead of a ZeroMQ topic prefix (see DESIGN.md).
const AllSubject = subjectPrefix + ".>"

// External is a transport.External backed by a NATS connection.
type External struct {
	conn     *natslib.Conn
	sub      *natslib.Subscription
	log      logger.Logger
	inbox    chan transport.Envelope
	closed   chan struct{}
	once     sync.Once
	pid      int
	threadID uint64
}

var _ transport.External = (*External)(nil)

// New connects to the NATS server at url and subscribes to AllSubject.
// threadID identifies the goroutine driving this connection's reader,
// used only to populate the wire identifier's thread component.
func New(url string, threadID uint64, log logger.Logger) (*External, error) {
	conn, err := natslib.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	e := &External{
		conn:     conn,
		log:      log,
		inbox:    make(chan transport.Envelope, 256),
		closed:   make(chan struct{}),
		pid:      os.Getpid(),
		threadID: threadID,
	}

	sub, err := conn.Subscribe(AllSubject, e.onMessage)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	e.sub = sub
	return e, nil
}

func (e *External) onMessage(m *natslib.Msg) {
	env, err := decodeFrame(m.Data)
	if err != nil {
		e.log.Warn(fmt.Sprintf("nats: dropping unparseable frame on %s: %s", m.Subject, err))
		return
	}
	select {
	case e.inbox <- env:
	case <-e.closed:
	}
}

// Send publishes env on the subject derived from its (group, scheme,
// type) triple, framed per spec.md §6: identifier string, NUL, payload.
func (e *External) Send(_ context.Context, env transport.Envelope) error {
	return e.conn.Publish(subjectFor(env), e.encodeFrame(env))
}

// Inbound returns the channel of envelopes received from the bus.
func (e *External) Inbound() <-chan transport.Envelope { return e.inbox }

// Close unsubscribes, closes the connection, and closes Inbound.
func (e *External) Close() error {
	var err error
	e.once.Do(func() {
		close(e.closed)
		err = e.sub.Unsubscribe()
		e.conn.Close()
		close(e.inbox)
	})
	return err
}

// subjectFor derives a NATS subject from an envelope's routing triple.
// NATS subjects are '.'-delimited and reject raw '/'; sanitize maps the
// wire identifier's path separators onto subject tokens.
func subjectFor(env transport.Envelope) string {
	return strings.Join([]string{subjectPrefix, sanitize(env.Group.Name()), env.Scheme.String(), sanitize(env.TypeName)}, ".")
}

func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	r := strings.NewReplacer(".", "_", " ", "_", ">", "_", "*", "_")
	return r.Replace(s)
}

// encodeFrame renders the spec.md §6 wire framing: identifier string,
// a NUL byte, then the payload.
func (e *External) encodeFrame(env transport.Envelope) []byte {
	id := group.Identifier{
		Group:    env.Group.Name(),
		Scheme:   env.Scheme,
		Type:     env.TypeName,
		PID:      e.pid,
		ThreadID: e.threadID,
	}
	frame := make([]byte, 0, len(id.String())+1+len(env.Payload))
	frame = append(frame, []byte(id.String())...)
	frame = append(frame, 0)
	frame = append(frame, env.Payload...)
	return frame
}

// decodeFrame splits a wire frame at its first NUL into an identifier
// and payload, and reconstructs the Envelope it represents (minus
// SerializeTimestamp and PublisherConfig, which do not survive the
// wire — see DESIGN.md).
func decodeFrame(data []byte) (transport.Envelope, error) {
	i := indexByte(data, 0)
	if i < 0 {
		return transport.Envelope{}, fmt.Errorf("frame missing NUL separator")
	}
	id, err := group.ParseIdentifier(string(data[:i]))
	if err != nil {
		return transport.Envelope{}, err
	}
	return transport.Envelope{
		Scheme:   id.Scheme,
		TypeName: id.Type,
		Group:    group.New(id.Group),
		Payload:  append([]byte(nil), data[i+1:]...),
	}, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
