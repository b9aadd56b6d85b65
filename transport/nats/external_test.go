// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

//go:build integration

package nats_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/goby-project/goby-middleware/group"
	mglog "github.com/goby-project/goby-middleware/logger"
	"github.com/goby-project/goby-middleware/transport"
	natsx "github.com/goby-project/goby-middleware/transport/nats"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var natsURL string

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not connect to docker: %s", err)
	}

	container, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "nats",
		Tag:        "2.9.21-alpine",
	})
	if err != nil {
		log.Fatalf("could not start container: %s", err)
	}
	handleInterrupt(pool, container)

	natsURL = fmt.Sprintf("nats://localhost:%s", container.GetPort("4222/tcp"))

	code := m.Run()
	if err := pool.Purge(container); err != nil {
		log.Fatalf("could not purge container: %s", err)
	}
	os.Exit(code)
}

func handleInterrupt(pool *dockertest.Pool, container *dockertest.Resource) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		_ = pool.Purge(container)
		os.Exit(0)
	}()
}

func TestExternalSendReceivesOwnPublication(t *testing.T) {
	log, err := mglog.New(io.Discard, "error")
	require.NoError(t, err)

	ext, err := natsx.New(natsURL, 1, log)
	require.NoError(t, err)
	defer ext.Close()

	env := transport.Envelope{
		Group:              group.New("nav"),
		Scheme:             group.SchemeProtobuf,
		TypeName:           "Position",
		SerializeTimestamp: time.Now(),
		Payload:            []byte("fix"),
	}
	require.NoError(t, ext.Send(context.Background(), env))

	select {
	case got := <-ext.Inbound():
		assert.Equal(t, env.TypeName, got.TypeName)
		assert.Equal(t, env.Group.Name(), got.Group.Name())
		assert.Equal(t, env.Payload, got.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive own publication back from the bus")
	}
}
