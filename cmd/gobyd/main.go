// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// gobyd runs the interprocess Router+Manager pair (spec.md §4.7,
// component C7): a NATS connection plays the XPUB/XSUB Router role
// (see transport/nats), and gobyd itself hosts the request/response
// Manager that answers PROVIDE_PUB_SUB_SOCKETS and PROVIDE_HOLD_STATE
// queries and tracks required-client readiness. Structured the way the
// teacher's cmd/<service>/main.go daemons are: env-parsed config,
// go-kit logger, errgroup lifecycle, signal-driven shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v7"
	natslib "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/goby-project/goby-middleware/broker"
	"github.com/goby-project/goby-middleware/logger"
)

const svcName = "gobyd"

type config struct {
	LogLevel          string `env:"GOBY_LOG_LEVEL" envDefault:"info"`
	NATSURL           string `env:"GOBY_NATS_URL" envDefault:"nats://localhost:4222"`
	PublishEndpoint   string `env:"GOBY_PUBLISH_ENDPOINT" envDefault:"nats://localhost:4222"`
	SubscribeEndpoint string `env:"GOBY_SUBSCRIBE_ENDPOINT" envDefault:"nats://localhost:4222"`
	RequiredClients   string `env:"GOBY_REQUIRED_CLIENTS" envDefault:""`
}

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

	conn, err := natslib.Connect(cfg.NATSURL)
	if err != nil {
		logr.Error(fmt.Sprintf("failed to connect to %s: %s", cfg.NATSURL, err))
		exitCode = 1
		return
	}
	defer conn.Close()
	logr.Info("gobyd connected to NATS router at " + cfg.NATSURL)

	required := splitNonEmpty(cfg.RequiredClients)
	manager := broker.NewManager(conn, required, cfg.PublishEndpoint, cfg.SubscribeEndpoint, logr)
	if err := manager.Start(); err != nil {
		logr.Error(fmt.Sprintf("failed to start manager: %s", err))
		exitCode = 1
		return
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			logr.Warn(fmt.Sprintf("manager stop: %s", err))
		}
	}()
	logr.Info(fmt.Sprintf("gobyd manager started, required clients: %v", required))

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return waitForSignal(ctx, cancel, logr)
	})

	if err := g.Wait(); err != nil {
		logr.Error(fmt.Sprintf("gobyd terminated: %s", err))
		exitCode = 1
	}
}

// waitForSignal blocks until ctx is cancelled or a termination signal
// arrives, in which case it cancels ctx itself so every other errgroup
// goroutine unwinds too.
func waitForSignal(ctx context.Context, cancel context.CancelFunc, logr logger.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logr.Info(fmt.Sprintf("gobyd received %s, shutting down", sig))
		cancel()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
