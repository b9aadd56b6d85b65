// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// modemsim is a development-only tool that exercises the intervehicle
// portal (component C8) end to end without physical modem hardware: it
// runs two Portals in one process, joined by a simLink that simulates
// a slow, lossy acoustic/radio duty cycle, publishes a steady stream of
// ping messages from one side, subscribes on the other, and logs
// every delivery, ack, and expire it observes. Structured like the
// teacher's cmd/<service>/main.go daemons: env-parsed config, the
// shared logger package, signal-driven shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v7"

	"github.com/goby-project/goby-middleware/buffer"
	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/intervehicle"
	"github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/serialize"
	"github.com/goby-project/goby-middleware/transport"
)

const svcName = "modemsim"

type config struct {
	LogLevel        string        `env:"GOBY_LOG_LEVEL" envDefault:"debug"`
	DutyCycle       time.Duration `env:"GOBY_DUTY_CYCLE" envDefault:"200ms"`
	LinkLatency     time.Duration `env:"GOBY_LINK_LATENCY" envDefault:"500ms"`
	LossProbability float64       `env:"GOBY_LOSS_PROBABILITY" envDefault:"0.1"`
	MaxFrameBytes   int           `env:"GOBY_MAX_FRAME_BYTES" envDefault:"128"`
	PublishInterval time.Duration `env:"GOBY_PUBLISH_INTERVAL" envDefault:"150ms"`
}

const pingTypeName = "modemsim.Ping"

func main() {
	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s configuration: %s", svcName, err)
	}

	logr, err := logger.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %s", err)
	}

	exitCode := 0
	defer logger.ExitWithError(&exitCode)

	registry := serialize.NewRegistry()
	if err := registry.Register(group.SchemeDCCL, serialize.NewDCCLHandler(pingTypeName, func() serialize.DCCLCodec { return &ping{} })); err != nil {
		logr.Error(fmt.Sprintf("register ping codec: %s", err))
		exitCode = 1
		return
	}

	vehicleA := &simLink{DutyCycle: cfg.DutyCycle, LinkLatency: cfg.LinkLatency, LossProbability: cfg.LossProbability, MaxFrameBytes: cfg.MaxFrameBytes}
	vehicleB := &simLink{DutyCycle: cfg.DutyCycle, LinkLatency: cfg.LinkLatency, LossProbability: cfg.LossProbability, MaxFrameBytes: cfg.MaxFrameBytes}
	vehicleA.Peer, vehicleB.Peer = vehicleB, vehicleA

	portalCfg := intervehicle.Config{AckTimeout: 2 * time.Second, SweepInterval: 250 * time.Millisecond, MaxFrameBytes: cfg.MaxFrameBytes}
	portalA := intervehicle.NewPortal(registry, vehicleA, logr, portalCfg)
	portalB := intervehicle.NewPortal(registry, vehicleB, logr, portalCfg)

	portalA.SubscribeAck(func(a intervehicle.AckData) {
		logr.Info(fmt.Sprintf("vehicle A: acked %v", a.Value))
	})
	portalA.SubscribeExpire(func(e intervehicle.ExpireData) {
		logr.Warn(fmt.Sprintf("vehicle A: expired (%s) %v", e.Reason, e.Value))
	})

	if _, err := portalB.Subscribe(1, group.NewNumeric(1), group.SchemeDCCL, pingTypeName, func(v interface{}) {
		p, ok := v.(*ping)
		if !ok {
			return
		}
		logr.Info(fmt.Sprintf("vehicle B: received ping #%d %q", p.Sequence, p.Payload))
	}); err != nil {
		logr.Error(fmt.Sprintf("vehicle B subscribe: %s", err))
		exitCode = 1
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := portalA.Start(ctx); err != nil {
		logr.Error(fmt.Sprintf("vehicle A start: %s", err))
		exitCode = 1
		return
	}
	defer portalA.Stop()
	if err := portalB.Start(ctx); err != nil {
		logr.Error(fmt.Sprintf("vehicle B start: %s", err))
		exitCode = 1
		return
	}
	defer portalB.Stop()

	logr.Info(fmt.Sprintf("modemsim running: duty cycle %s, link latency %s, loss probability %.2f",
		cfg.DutyCycle, cfg.LinkLatency, cfg.LossProbability))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go publishLoop(ctx, portalA, cfg.PublishInterval, logr)

	select {
	case sig := <-sigCh:
		logr.Info(fmt.Sprintf("modemsim received %s, shutting down", sig))
	case <-ctx.Done():
	}
}

func publishLoop(ctx context.Context, portal *intervehicle.Portal, interval time.Duration, logr logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			msg := &ping{Sequence: seq, Payload: fmt.Sprintf("hello-%d", seq)}
			cfg := transport.Config{
				Buffer: buffer.Config{
					TTL:         5 * time.Second,
					ValueBase:   10,
					MaxQueue:    4,
					AckRequired: true,
				},
			}
			if err := portal.Publish(0, group.NewNumeric(1), group.SchemeDCCL, pingTypeName, msg, cfg); err != nil {
				logr.Warn(fmt.Sprintf("vehicle A publish: %s", err))
			}
		}
	}
}
