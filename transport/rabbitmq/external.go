// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package rabbitmq implements the intermodule portal's External
// connection over a RabbitMQ topic exchange, giving intermodule a
// distinct broker technology from interprocess's NATS-backed Router
// (spec.md §1: "a variant of interprocess for multi-module bus
// topologies").
package rabbitmq

import (
	"context"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/transport"
)

const exchangeName = "goby.modules"

// External is a transport.External backed by a RabbitMQ topic
// exchange: every module publishes to exchangeName with a routing key
// derived from the envelope's (group, scheme, type) and binds an
// exclusive queue with a wildcard pattern to receive everything.
type External struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	log     logger.Logger
	inbox   chan transport.Envelope
	closed  chan struct{}
	once    sync.Once
	pid     int
	module  string
}

var _ transport.External = (*External)(nil)

// New dials url, declares the shared topic exchange, and binds an
// exclusive queue for module (this process's bus participant name) to
// the wildcard routing key "#".
func New(url, module string, pid int, log logger.Logger) (*External, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", exchangeName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue bind: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq consume: %w", err)
	}

	e := &External{
		conn:    conn,
		channel: ch,
		queue:   q,
		log:     log,
		inbox:   make(chan transport.Envelope, 256),
		closed:  make(chan struct{}),
		pid:     pid,
		module:  module,
	}
	go e.readLoop(deliveries)
	return e, nil
}

func (e *External) readLoop(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		env, err := decodeFrame(d.Body)
		if err != nil {
			e.log.Warn(fmt.Sprintf("rabbitmq: dropping unparseable frame on %s: %s", d.RoutingKey, err))
			continue
		}
		select {
		case e.inbox <- env:
		case <-e.closed:
			return
		}
	}
}

// Send publishes env to exchangeName with a routing key derived from
// its (group, scheme, type) triple.
func (e *External) Send(ctx context.Context, env transport.Envelope) error {
	return e.channel.PublishWithContext(ctx, exchangeName, routingKeyFor(env), false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        e.encodeFrame(env),
	})
}

// Inbound returns the channel of envelopes received from the bus.
func (e *External) Inbound() <-chan transport.Envelope { return e.inbox }

// Close tears down the channel and connection and closes Inbound.
func (e *External) Close() error {
	var err error
	e.once.Do(func() {
		close(e.closed)
		err = e.channel.Close()
		e.conn.Close()
		close(e.inbox)
	})
	return err
}

func routingKeyFor(env transport.Envelope) string {
	return strings.Join([]string{sanitize(env.Group.Name()), env.Scheme.String(), sanitize(env.TypeName)}, ".")
}

func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	r := strings.NewReplacer(".", "_", " ", "_", "#", "_", "*", "_")
	return r.Replace(s)
}

func (e *External) encodeFrame(env transport.Envelope) []byte {
	id := group.Identifier{Group: env.Group.Name(), Scheme: env.Scheme, Type: env.TypeName, PID: e.pid}
	frame := make([]byte, 0, len(id.String())+1+len(env.Payload))
	frame = append(frame, []byte(id.String())...)
	frame = append(frame, 0)
	frame = append(frame, env.Payload...)
	return frame
}

func decodeFrame(data []byte) (transport.Envelope, error) {
	i := -1
	for idx, b := range data {
		if b == 0 {
			i = idx
			break
		}
	}
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
