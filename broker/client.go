// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/transport"
	natslib "github.com/nats-io/nats.go"
)

// ControlKind names the inproc control messages spec.md §4.7 threads
// between an interprocess portal's main and read goroutines. A Go
// Client's Subscribe/Unsubscribe calls the shared subscription.Table
// directly under its own mutex instead of crossing a real inproc
// socket, so the WAITING_ACK state this enumeration names collapses to
// an ordinary synchronous function call — see DESIGN.md.
type ControlKind int

const (
	CtlSubscribe ControlKind = iota
	CtlUnsubscribe
	CtlSubscribeAck
	CtlUnsubscribeAck
	CtlReceive
	CtlPubConfiguration
	CtlRequestHoldState
	CtlNotifyHoldState
	CtlShutdown
)

// HoldPollInterval is the ~10 Hz cadence spec.md §4.7 specifies for a
// client polling the Manager's hold state while it waits for required
// clients to come up.
const HoldPollInterval = 100 * time.Millisecond

// DrainPause is the brief pause spec.md §4.7 introduces between hold
// release and flushing buffered publications, to let late subscriptions
// propagate first. A var, not a const, so tests can shrink it.
var DrainPause = time.Second

// holdBuffer wraps a transport.External, queueing Send calls while the
// Manager reports hold=true and flushing them, after DrainPause, once
// it clears.
type holdBuffer struct {
	inner transport.External

	mu       sync.Mutex
	held     bool
	buffered []transport.Envelope
}

func newHoldBuffer(inner transport.External) *holdBuffer {
	return &holdBuffer{inner: inner, held: true}
}

func (h *holdBuffer) Send(ctx context.Context, env transport.Envelope) error {
	h.mu.Lock()
	if h.held {
		h.buffered = append(h.buffered, env)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()
	return h.inner.Send(ctx, env)
}

func (h *holdBuffer) Inbound() <-chan transport.Envelope { return h.inner.Inbound() }
func (h *holdBuffer) Close() error                       { return h.inner.Close() }

// release flips held off after DrainPause and flushes whatever
// accumulated while held, in publish order.
func (h *holdBuffer) release(ctx context.Context, log logger.Logger) {
	time.Sleep(DrainPause)

	h.mu.Lock()
	h.held = false
	buffered := h.buffered
	h.buffered = nil
	h.mu.Unlock()

	for _, env := range buffered {
		if err := h.inner.Send(ctx, env); err != nil {
			log.Warn(fmt.Sprintf("holdBuffer: flush send failed: %s", err))
		}
	}
}

// Client drives one interprocess portal's connection to the Manager:
// it queries ProvideHoldState at HoldPollInterval until the system
// releases, then stops querying (the "unsubscribe from the response
// channel" of spec.md §4.7 is simply exiting the polling loop, since
// our Manager query is a NATS request/reply rather than a persistent
// subscription).
type Client struct {
	cfg     Config
	conn    *natslib.Conn
	buffer  *holdBuffer
	log     logger.Logger
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewClient wraps ext in hold-gating and begins querying the Manager
// reachable over conn.
func NewClient(conn *natslib.Conn, ext transport.External, cfg Config, log logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		conn:   conn,
		buffer: newHoldBuffer(ext),
		log:    log,
	}
}

// External returns the hold-gated External a Portal should be built
// on top of.
func (c *Client) External() transport.External { return c.buffer }

// Start begins the ~10 Hz hold-state poll loop and releases the
// buffer once the Manager reports hold=false.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopped = make(chan struct{})

	go func() {
		defer close(c.stopped)
		ticker := time.NewTicker(HoldPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			hold, err := c.queryHold(ctx)
			if err != nil {
				c.log.Warn(fmt.Sprintf("client: hold query failed: %s", err))
				continue
			}
			if !hold {
				c.buffer.release(ctx, c.log)
				return
			}
		}
	}()
}

func (c *Client) queryHold(ctx context.Context) (bool, error) {
	req := Request{Kind: ProvideHoldState, ClientName: c.cfg.ClientName, Ready: true}
	data, err := encodeRequest(req)
	if err != nil {
		return false, err
	}

	timeout := time.Duration(c.cfg.ManagerTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(reqCtx, requestSubject, data)
	if err != nil {
		return false, err
	}

	resp, err := decodeResponse(msg.Data)
	if err != nil {
		return false, err
	}
	return resp.Hold, nil
}

// Stop cancels the poll loop, if still running, and waits for it to
// exit.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.stopped
}
