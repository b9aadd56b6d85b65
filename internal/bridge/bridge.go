// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package bridge notifies an external MQTT broker whenever the
// intermodule gateway forwards a publication across its RabbitMQ-backed
// bus, so a dashboard or liaison tool can watch module-to-module
// traffic without joining the bus itself. It is optional: a gateway
// that leaves Config.URL empty does not construct one. Grounded on
// the teacher's mqtt.Forwarder (nintran52-supermq mqtt/forwarder.go),
// which the same way subscribes to one transport and republishes onto
// another; here the "other transport" is a single topic rather than a
// full pub/sub fan-out, since the bridge only emits a presence signal.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/transport"
)

// Notification is the small JSON payload published for every envelope
// the bridge observes crossing the intermodule bus.
type Notification struct {
	Group     string `json:"group"`
	Scheme    string `json:"scheme"`
	Type      string `json:"type"`
	Direction string `json:"direction"` // "outbound" or "inbound"
	Bytes     int    `json:"bytes"`
	Timestamp int64  `json:"timestamp"`
}

// Bridge publishes a Notification to an MQTT broker for every envelope
// an intermodule External sends or receives.
type Bridge struct {
	client mqtt.Client
	topic  string
	log    logger.Logger
}

// Config configures a Bridge's MQTT connection.
type Config struct {
	// URL is the MQTT broker address, e.g. "tcp://localhost:1883". A
	// zero-value URL means the intermodule gateway runs with no bridge.
	URL string
	// ClientID identifies this gateway's MQTT connection.
	ClientID string
	// Topic is the MQTT topic notifications are published to.
	Topic string
}

// New dials the MQTT broker at cfg.URL and returns a Bridge ready to
// Notify. Connection follows paho's synchronous Connect token pattern,
// the same one the teacher's ws/mqtt adapters use.
func New(cfg Config, log logger.Logger) (*Bridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("bridge: mqtt connect: %w", token.Error())
	}

	return &Bridge{client: client, topic: cfg.Topic, log: log}, nil
}

// Close disconnects the MQTT client, waiting up to 250ms for in-flight
// publishes to drain.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}

// Notify publishes n to the bridge's configured topic. Failures are
// logged, not returned: a dropped dashboard notification must never
// hold up the intermodule bus it is observing.
func (b *Bridge) Notify(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		b.log.Warn(fmt.Sprintf("bridge: encode notification: %s", err))
		return
	}
	token := b.client.Publish(b.topic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			b.log.Warn(fmt.Sprintf("bridge: publish: %s", token.Error()))
		}
	}()
}

// Watch wraps ext so that every Send and every value read off Inbound
// also produces a Notify call, then returns the wrapping External for
// the intermodule portal to use in ext's place.
func (b *Bridge) Watch(ext transport.External) transport.External {
	return &watchedExternal{External: ext, bridge: b}
}

type watchedExternal struct {
	transport.External
	bridge *Bridge

	relayOnce sync.Once
	relay     chan transport.Envelope
}

func (w *watchedExternal) Send(ctx context.Context, env transport.Envelope) error {
	err := w.External.Send(ctx, env)
	if err == nil {
		w.bridge.notifyEnvelope(env, "outbound")
	}
	return err
}

func (b *Bridge) notifyEnvelope(env transport.Envelope, direction string) {
	b.Notify(Notification{
		Group:     env.Group.Name(),
		Scheme:    env.Scheme.String(),
		Type:      env.TypeName,
		Direction: direction,
		Bytes:     len(env.Payload),
		Timestamp: env.SerializeTimestamp.UnixNano(),
	})
}

// Inbound forwards every envelope off the wrapped External's Inbound
// channel through Notify before the portal consumes it. The relay
// goroutine is started at most once (Portal's drain loop re-evaluates
// Inbound() on every select iteration, see transport/portal.go), so the
// same relay channel is handed back on every call.
func (w *watchedExternal) Inbound() <-chan transport.Envelope {
	w.relayOnce.Do(func() {
		w.relay = make(chan transport.Envelope, 256)
		go func() {
			defer close(w.relay)
			for env := range w.External.Inbound() {
				w.bridge.notifyEnvelope(env, "inbound")
				w.relay <- env
			}
		}()
	})
	return w.relay
}

var _ transport.External = (*watchedExternal)(nil)
