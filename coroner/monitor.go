// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import (
	"context"
	"sync"
	"time"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/transport"
)

// pollInterval is how often Monitor checks whether its response
// window has elapsed; it only needs to be fine-grained relative to
// Config.ResponseTimeout, not to wall-clock precision.
const pollInterval = 50 * time.Millisecond

// Config configures a Monitor.
type Config struct {
	// ResponseTimeout bounds how long the Monitor waits for its own and
	// its children's thread-health responses before replying, per
	// spec.md §4.10's "bounded window (≈1 s)".
	ResponseTimeout time.Duration
}

func (c Config) normalize() Config {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = time.Second
	}
	return c
}

// Monitor is the Go analogue of `health_monitor_thread.cpp`: on a
// HealthRequest received over the interprocess layer, it forwards a
// HealthRequest to every Participant on the interthread layer,
// collects their ThreadHealth answers for Config.ResponseTimeout, and
// replies with one aggregated ProcessHealth over the interprocess
// layer — worst-of-children, exactly as the original's loop().
type Monitor struct {
	interprocess transport.Layer
	interthread  transport.Layer
	owner        uint64
	appName      string
	pid          int32
	mainHealth   HealthFunc
	cfg          Config
	log          logger.Logger

	mu          sync.Mutex
	waiting     bool
	requestedAt time.Time
	children    map[uint64]ThreadHealth

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor returns a Monitor for a process named appName/pid, using
// interprocess for the fleet-facing HealthRequest/ProcessHealth
// exchange and interthread to fan the request out to Participants.
// mainHealth reports the hosting application's own (non-Participant)
// state, e.g. always HealthOK for a simple daemon.
func NewMonitor(interprocess, interthread transport.Layer, appName string, pid int32, mainHealth HealthFunc, log logger.Logger, cfg Config) *Monitor {
	return &Monitor{
		interprocess: interprocess,
		interthread:  interthread,
		owner:        ThreadID(),
		appName:      appName,
		pid:          pid,
		mainHealth:   mainHealth,
		cfg:          cfg.normalize(),
		log:          log,
		children:     make(map[uint64]ThreadHealth),
	}
}

// Start subscribes the Monitor to both layers and begins its poll
// loop.
func (m *Monitor) Start(ctx context.Context) error {
	if _, err := m.interprocess.Subscribe(m.owner, healthGroup(HealthRequestGroup), group.SchemeProtobuf, HealthRequestType,
		m.onProcessHealthRequest); err != nil {
		return err
	}
	if _, err := m.interthread.Subscribe(m.owner, healthGroup(HealthResponseGroup), group.SchemeProtobuf, ThreadHealthType,
		m.onChildResponse); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx)
	return nil
}

// Stop ends the poll loop. Subscriptions are left in place; Monitor
// does not outlive the layers it was built with.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Monitor) onProcessHealthRequest(interface{}) {
	m.mu.Lock()
	m.waiting = true
	m.requestedAt = time.Now()
	m.children = make(map[uint64]ThreadHealth)
	m.mu.Unlock()

	if err := m.interthread.Publish(m.owner, healthGroup(HealthRequestGroup), group.SchemeProtobuf, HealthRequestType,
		&HealthRequest{}, transport.Config{}); err != nil && m.log != nil {
		m.log.Warn("coroner: publish health request: " + err.Error())
	}
}

func (m *Monitor) onChildResponse(v interface{}) {
	th, ok := v.(*ThreadHealth)
	if !ok {
		return
	}
	m.mu.Lock()
	m.children[th.UID] = *th
	m.mu.Unlock()
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	m.mu.Lock()
	if !m.waiting || time.Since(m.requestedAt) < m.cfg.ResponseTimeout {
		m.mu.Unlock()
		return
	}
	children := make([]ThreadHealth, 0, len(m.children))
	for _, th := range m.children {
		children = append(children, th)
	}
	m.waiting = false
	m.mu.Unlock()

	report := ProcessHealth{
		Name:     m.appName,
		PID:      m.pid,
		Main:     ThreadHealth{Name: m.appName, UID: m.owner, State: m.mainHealth()},
		Children: children,
	}
	report.Aggregate()

	if err := m.interprocess.Publish(m.owner, healthGroup(HealthResponseGroup), group.SchemeProtobuf, ProcessHealthType,
		&report, transport.Config{}); err != nil && m.log != nil {
		m.log.Warn("coroner: publish process health: " + err.Error())
	}
}
