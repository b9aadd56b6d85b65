// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/transport"
)

// VehicleHealth is a Checker's fleet-wide report, the Go analogue of
// `src/apps/zeromq/coroner/coroner.cpp`'s VehicleHealth: every tracked
// process's last-known ProcessHealth, aggregated into one overall
// State that is FAILED if any expected process never answered.
type VehicleHealth struct {
	Time      time.Time
	State     HealthState
	Processes []ProcessHealth
	Missing   []string
}

// CheckerConfig configures a Checker.
type CheckerConfig struct {
	// RequestInterval is how often a new HealthRequest round starts,
	// mirroring coroner.cpp's request_interval.
	RequestInterval time.Duration
	// ResponseTimeout bounds how long a round waits for ProcessHealth
	// replies before it is scored, mirroring coroner.cpp's
	// response_timeout.
	ResponseTimeout time.Duration
}

func (c CheckerConfig) normalize() CheckerConfig {
	if c.RequestInterval <= 0 {
		c.RequestInterval = 10 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = time.Second
	}
	return c
}

// Checker polls every process reachable on an interprocess layer for
// its health, on a fixed cadence, and reports a fleet-wide
// VehicleHealth to a caller-supplied callback — the Go analogue of the
// standalone `goby_coroner` tool. Processes it has heard from even
// once are tracked from then on, exactly as coroner.cpp does
// ("Tracking new process name").
type Checker struct {
	layer    transport.Layer
	owner    uint64
	cfg      CheckerConfig
	log      logger.Logger
	onReport func(VehicleHealth)

	mu      sync.Mutex
	tracked map[string]struct{}
	seen    map[string]ProcessHealth

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChecker returns a Checker that publishes HealthRequests on layer
// and reports each round's VehicleHealth to onReport. expectedNames
// seeds the tracked set (spec.md §4.10 names no discovery mechanism,
// so any process that never announces itself by name must be
// preconfigured to be missed rather than silently ignored).
func NewChecker(layer transport.Layer, expectedNames []string, onReport func(VehicleHealth), log logger.Logger, cfg CheckerConfig) *Checker {
	tracked := make(map[string]struct{}, len(expectedNames))
	for _, name := range expectedNames {
		tracked[name] = struct{}{}
	}
	return &Checker{
		layer:    layer,
		owner:    ThreadID(),
		cfg:      cfg.normalize(),
		log:      log,
		onReport: onReport,
		tracked:  tracked,
		seen:     make(map[string]ProcessHealth),
	}
}

// Start subscribes the Checker and begins its request/response cycle.
func (c *Checker) Start(ctx context.Context) error {
	if _, err := c.layer.Subscribe(c.owner, healthGroup(HealthResponseGroup), group.SchemeProtobuf, ProcessHealthType,
		c.onProcessHealth); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx)
	return nil
}

// Stop ends the request/response cycle.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Checker) onProcessHealth(v interface{}) {
	ph, ok := v.(*ProcessHealth)
	if !ok {
		return
	}
	c.mu.Lock()
	c.seen[ph.Name] = *ph
	if _, known := c.tracked[ph.Name]; !known {
		c.tracked[ph.Name] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *Checker) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.RequestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.round(ctx)
		}
	}
}

func (c *Checker) round(ctx context.Context) {
	c.mu.Lock()
	c.seen = make(map[string]ProcessHealth)
	c.mu.Unlock()

	if err := c.layer.Publish(c.owner, healthGroup(HealthRequestGroup), group.SchemeProtobuf, HealthRequestType,
		&HealthRequest{}, transport.Config{}); err != nil {
		if c.log != nil {
			c.log.Warn("coroner: checker request: " + err.Error())
		}
		return
	}

	select {
	case <-time.After(c.cfg.ResponseTimeout):
	case <-ctx.Done():
		return
	}
	c.score()
}

func (c *Checker) score() {
	c.mu.Lock()
	names := make([]string, 0, len(c.tracked))
	for name := range c.tracked {
		names = append(names, name)
	}
	report := VehicleHealth{Time: time.Now(), State: HealthOK}
	for _, name := range names {
		if ph, ok := c.seen[name]; ok {
			report.State = WorstOf(report.State, ph.State)
			report.Processes = append(report.Processes, ph)
		} else {
			report.State = HealthFailed
			report.Missing = append(report.Missing, name)
		}
	}
	c.mu.Unlock()

	if c.log != nil {
		if report.State != HealthOK {
			c.log.Warn(fmt.Sprintf("coroner: vehicle health %s, missing %v", report.State, report.Missing))
		} else {
			c.log.Debug(fmt.Sprintf("coroner: vehicle health %s", report.State))
		}
	}
	if c.onReport != nil {
		c.onReport(report)
	}
}
