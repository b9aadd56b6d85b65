// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"sync"

	"github.com/goby-project/goby-middleware/logger"
	natslib "github.com/nats-io/nats.go"
)

// Manager answers client requests for endpoint discovery and hold
// state (spec.md §4.7). It tracks one ready flag per required client
// name; Hold() reports true until every required client has reported
// ready at least once.
type Manager struct {
	mu                sync.Mutex
	ready             map[string]bool
	publishEndpoint   string
	subscribeEndpoint string

	conn *natslib.Conn
	sub  *natslib.Subscription
	log  logger.Logger
}

// NewManager returns a Manager that will consider the system held
// until every name in requiredClients has reported ready.
func NewManager(conn *natslib.Conn, requiredClients []string, publishEndpoint, subscribeEndpoint string, log logger.Logger) *Manager {
	ready := make(map[string]bool, len(requiredClients))
	for _, name := range requiredClients {
		ready[name] = false
	}
	return &Manager{
		ready:             ready,
		publishEndpoint:   publishEndpoint,
		subscribeEndpoint: subscribeEndpoint,
		conn:              conn,
		log:               log,
	}
}

// Start subscribes to the request subject and begins answering
// queries.
func (m *Manager) Start() error {
	sub, err := m.conn.Subscribe(requestSubject, m.handle)
	if err != nil {
		return fmt.Errorf("manager subscribe: %w", err)
	}
	m.sub = sub
	return nil
}

// Stop unsubscribes the Manager.
func (m *Manager) Stop() error {
	if m.sub == nil {
		return nil
	}
	return m.sub.Unsubscribe()
}

// Hold reports whether any required client has not yet reported ready.
func (m *Manager) Hold() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ready := range m.ready {
		if !ready {
			return true
		}
	}
	return false
}

// processRequest applies req's readiness update, if any, and computes
// the Response the Manager owes it. Split out from handle so the
// readiness/hold bookkeeping is testable without a live NATS message.
func (m *Manager) processRequest(req Request) Response {
	if req.Ready {
		m.mu.Lock()
		if _, tracked := m.ready[req.ClientName]; tracked {
			m.ready[req.ClientName] = true
		}
		m.mu.Unlock()
	}

	return Response{
		Kind:              req.Kind,
		ClientName:        req.ClientName,
		PID:               req.PID,
		Hold:              m.Hold(),
		PublishEndpoint:   m.publishEndpoint,
		SubscribeEndpoint: m.subscribeEndpoint,
	}
}

func (m *Manager) handle(msg *natslib.Msg) {
	req, err := decodeRequest(msg.Data)
	if err != nil {
		m.log.Warn(fmt.Sprintf("manager: dropping malformed request: %s", err))
		return
	}

	data, err := encodeResponse(m.processRequest(req))
	if err != nil {
		m.log.Warn(fmt.Sprintf("manager: encode response: %s", err))
		return
	}
	if err := msg.Respond(data); err != nil {
		m.log.Warn(fmt.Sprintf("manager: respond: %s", err))
	}
}
