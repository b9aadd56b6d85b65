// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package metrics instruments the intervehicle portal with one
// Prometheus counter of its ack/expire events, following the teacher's
// kit-prometheus wrapping-service pattern (things/cmd and
// authn/api/metrics.go). It records no latency summaries and does not
// instrument the broker client.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/goby-project/goby-middleware/intervehicle"
)

// IntervehicleMiddleware wraps an *intervehicle.Portal's ack/expire
// event stream with a Prometheus counter labeled by kind (ack, or one
// of the three ExpireReason strings), the same "method"-labeled
// counter shape the teacher's service middlewares use
// (authn/api/metrics.go) applied to events instead of RPCs.
type IntervehicleMiddleware struct {
	portal *intervehicle.Portal
	events metrics.Counter
}

// NewIntervehicleMiddleware returns a middleware wrapping portal.
// namespace/subsystem follow the teacher's convention of naming the
// owning service and the cross-cutting concern it instruments (e.g.
// "intervehicle"/"portal").
func NewIntervehicleMiddleware(portal *intervehicle.Portal, namespace, subsystem string) *IntervehicleMiddleware {
	m := &IntervehicleMiddleware{
		portal: portal,
		events: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "event_count",
			Help:      "Number of ack/expire events observed, labeled by kind.",
		}, []string{"kind"}),
	}
	portal.SubscribeAck(m.onAck)
	portal.SubscribeExpire(m.onExpire)
	return m
}

func (m *IntervehicleMiddleware) onAck(intervehicle.AckData) {
	m.events.With("kind", "ack").Add(1)
}

func (m *IntervehicleMiddleware) onExpire(data intervehicle.ExpireData) {
	m.events.With("kind", data.Reason.String()).Add(1)
}
